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

package msio

// BilinearResampler is the default FFTResampler used by tests and the demo
// binary when a caller doesn't supply a real FFT-based up/downsampler. It
// resizes a same-origin, centred grid with bilinear interpolation.
type BilinearResampler struct{}

// Resample implements FFTResampler.
func (BilinearResampler) Resample(src []float64, srcWidth, srcHeight, width, height int) []float64 {
	out := make([]float64, width*height)
	if srcWidth == width && srcHeight == height {
		copy(out, src)
		return out
	}
	scaleX := float64(srcWidth) / float64(width)
	scaleY := float64(srcHeight) / float64(height)
	for y := 0; y < height; y++ {
		sy := (float64(y) + 0.5) * scaleY - 0.5
		y0 := int(sy)
		fy := sy - float64(y0)
		y1 := y0 + 1
		y0 = clampInt(y0, 0, srcHeight-1)
		y1 = clampInt(y1, 0, srcHeight-1)
		for x := 0; x < width; x++ {
			sx := (float64(x) + 0.5) * scaleX - 0.5
			x0 := int(sx)
			fx := sx - float64(x0)
			x1 := x0 + 1
			x0 = clampInt(x0, 0, srcWidth-1)
			x1 = clampInt(x1, 0, srcWidth-1)

			v00 := src[y0*srcWidth+x0]
			v01 := src[y0*srcWidth+x1]
			v10 := src[y1*srcWidth+x0]
			v11 := src[y1*srcWidth+x1]

			top := v00*(1-fx) + v01*fx
			bot := v10*(1-fx) + v11*fx
			out[y*width+x] = top*(1-fy) + bot*fy
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
