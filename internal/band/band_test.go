// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package band

import (
	"math"
	"testing"
)

func TestWavelength(t *testing.T) {
	b := Data{Frequencies: []float64{SpeedOfLight, SpeedOfLight / 2}}
	if got := b.Wavelength(0); math.Abs(got-1) > 1e-9 {
		t.Errorf("Wavelength(0) = %v, want 1", got)
	}
	if got := b.Wavelength(1); math.Abs(got-2) > 1e-9 {
		t.Errorf("Wavelength(1) = %v, want 2", got)
	}
}

func TestMinMaxFrequency(t *testing.T) {
	b := Data{Frequencies: []float64{3, 1, 2}}
	min, max := b.MinMaxFrequency()
	if min != 1 || max != 3 {
		t.Errorf("MinMaxFrequency() = (%v,%v), want (1,3)", min, max)
	}
}

func TestMultiBandOutOfRange(t *testing.T) {
	m := Multi{Bands: []Data{{Frequencies: []float64{1}}}}
	if _, err := m.Band(5); err == nil {
		t.Errorf("Band(5) on a 1-element Multi should error")
	}
	if _, err := m.Band(0); err != nil {
		t.Errorf("Band(0) unexpected error: %v", err)
	}
}

func TestMultiMaxChannelCount(t *testing.T) {
	m := Multi{Bands: []Data{
		{Frequencies: []float64{1, 2, 3}},
		{Frequencies: []float64{1}},
	}}
	if got := m.MaxChannelCount(); got != 3 {
		t.Errorf("MaxChannelCount() = %d, want 3", got)
	}
}
