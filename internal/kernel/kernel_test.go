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

package kernel

import (
	"math"
	"testing"
)

func TestPeaksAtCentre(t *testing.T) {
	k := New(7, 63, 0)
	centre := k.Value(0, 0)
	edge := k.Value(3, 0.99)
	if centre <= edge {
		t.Errorf("kernel should peak at the centre: centre=%v edge=%v", centre, edge)
	}
}

func TestOddSizeRoundsUp(t *testing.T) {
	k := New(7, 8, 0)
	if k.Size() != 8 {
		t.Errorf("Size() = %d, want 8 (rounded up from odd 7)", k.Size())
	}
}

func TestTaperIsPositiveNearCentre(t *testing.T) {
	k := New(7, 63, 0)
	taper := k.Taper(32)
	centre := taper[16]
	if centre <= 0 || math.IsNaN(centre) {
		t.Errorf("Taper()[centre] = %v, want a small positive number", centre)
	}
}

func TestBesselI0Zero(t *testing.T) {
	if got := besselI0(0); math.Abs(got-1) > 1e-6 {
		t.Errorf("besselI0(0) = %v, want 1", got)
	}
}
