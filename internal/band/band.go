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

// Package band holds the per-spectral-window frequency metadata needed to
// convert a visibility's (u,v,w) from metres into wavelengths.
package band

import "fmt"

// SpeedOfLight in metres per second, as used throughout the gridder to
// convert baseline coordinates from metres to wavelengths.
const SpeedOfLight = 299792458.0

// Data describes one spectral window: its channel frequencies in Hz.
// Wavelengths are derived on demand rather than stored, since a band is
// typically read once per row and then discarded.
type Data struct {
	Frequencies []float64 // Hz, one per channel
}

// ChannelCount returns the number of channels in the band.
func (b Data) ChannelCount() int {
	return len(b.Frequencies)
}

// Wavelength returns the wavelength of channel ch in metres.
func (b Data) Wavelength(ch int) float64 {
	return SpeedOfLight / b.Frequencies[ch]
}

// MinMaxFrequency returns the lowest and highest channel frequency in the band.
func (b Data) MinMaxFrequency() (min, max float64) {
	if len(b.Frequencies) == 0 {
		return 0, 0
	}
	min, max = b.Frequencies[0], b.Frequencies[0]
	for _, f := range b.Frequencies[1:] {
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
	}
	return min, max
}

// Multi aggregates the bands of every spectral window referenced by a
// measurement set, indexed by data description id.
type Multi struct {
	Bands []Data
}

// Band returns the band for the given data description id, or an error if
// the id is out of range.
func (m Multi) Band(dataDescId int) (Data, error) {
	if dataDescId < 0 || dataDescId >= len(m.Bands) {
		return Data{}, fmt.Errorf("band: data description id %d out of range [0,%d)", dataDescId, len(m.Bands))
	}
	return m.Bands[dataDescId], nil
}

// MinMaxFrequency returns the overall frequency range across all bands.
func (m Multi) MinMaxFrequency() (min, max float64) {
	first := true
	for _, b := range m.Bands {
		bMin, bMax := b.MinMaxFrequency()
		if bMin == 0 && bMax == 0 {
			continue
		}
		if first {
			min, max, first = bMin, bMax, false
			continue
		}
		if bMin < min {
			min = bMin
		}
		if bMax > max {
			max = bMax
		}
	}
	return min, max
}

// MaxChannelCount returns the largest channel count across all bands, used
// to size per-row scratch buffers conservatively.
func (m Multi) MaxChannelCount() int {
	max := 0
	for _, b := range m.Bands {
		if n := b.ChannelCount(); n > max {
			max = n
		}
	}
	return max
}
