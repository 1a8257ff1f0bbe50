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

// Package kernel implements the oversampled antialiasing convolution kernel
// used to grid visibilities onto a layer and degrid them back, plus the
// matching image-domain taper correction applied once per final image.
package kernel

import "math"

// Kernel is a separable, oversampled 1D lookup table approximating a
// prolate spheroidal antialiasing function via a Kaiser-Bessel window. The
// same table is used along both grid axes.
type Kernel struct {
	size         int       // support width in grid cells, always even
	oversampling int       // samples per grid cell
	beta         float64   // Kaiser-Bessel shape parameter
	table        []float64 // size*oversampling+1 entries, symmetric around the centre
}

// New builds a Kaiser-Bessel kernel of the given support size (in grid
// cells) and oversampling factor (samples per cell). Larger beta values
// trade a narrower main lobe for higher sidelobe suppression; 2.0*size is a
// common practical default and is used when beta<=0 is passed.
func New(size, oversampling int, beta float64) *Kernel {
	if size%2 != 0 {
		size++
	}
	if oversampling < 1 {
		oversampling = 1
	}
	if beta <= 0 {
		beta = 2.0 * float64(size)
	}
	k := &Kernel{size: size, oversampling: oversampling, beta: beta}
	k.table = make([]float64, size*oversampling+1)
	half := float64(size) / 2
	for i := range k.table {
		x := float64(i)/float64(oversampling) - half
		k.table[i] = kaiserBessel(x, half, beta)
	}
	return k
}

// kaiserBessel evaluates the Kaiser-Bessel window at offset x from the
// centre of a support half-width of halfWidth grid cells.
func kaiserBessel(x, halfWidth, beta float64) float64 {
	if x < -halfWidth || x > halfWidth {
		return 0
	}
	ratio := x / halfWidth
	arg := beta * math.Sqrt(1-ratio*ratio)
	return besselI0(arg) / besselI0(beta)
}

// besselI0 evaluates the modified Bessel function of the first kind, order
// zero, via the standard polynomial approximation from Abramowitz & Stegun.
func besselI0(x float64) float64 {
	ax := math.Abs(x)
	if ax < 3.75 {
		t := x / 3.75
		t2 := t * t
		return 1.0 + t2*(3.5156229+t2*(3.0899424+t2*(1.2067492+
			t2*(0.2659732+t2*(0.0360768+t2*0.0045813)))))
	}
	t := 3.75 / ax
	return (math.Exp(ax) / math.Sqrt(ax)) * (0.39894228 + t*(0.01328592+
		t*(0.00225319+t*(-0.00157565+t*(0.00916281+
			t*(-0.02057706+t*(0.02635537+t*(-0.01647633+t*0.00392377))))))))
}

// Size returns the kernel's support width in grid cells.
func (k *Kernel) Size() int { return k.size }

// Value samples the kernel at a fractional offset from an integer grid
// cell, where frac is in [0,1). It returns the oversampled table entry at or
// below that offset; adjacent table samples are not interpolated.
func (k *Kernel) Value(cellOffset int, frac float64) float64 {
	half := k.size / 2
	idx := (cellOffset+half)*k.oversampling + int(frac*float64(k.oversampling))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(k.table) {
		idx = len(k.table) - 1
	}
	return k.table[idx]
}

// Taper returns the image-domain correction for a grid of the given size
// along one axis: dividing the image by Taper(size) after transforming into
// the image domain undoes the convolution response imprinted by this
// kernel. The result is the Fourier transform of the kernel's own support,
// evaluated analytically for a Kaiser-Bessel window.
func (k *Kernel) Taper(size int) []float64 {
	out := make([]float64, size)
	half := float64(k.size) / 2
	for i := range out {
		// map pixel i to a spatial frequency in [-0.5,0.5) cycles/pixel
		u := (float64(i) - float64(size)/2) / float64(size)
		arg := k.beta * k.beta - math.Pow(2*math.Pi*half*u, 2)
		var val float64
		if arg >= 0 {
			s := math.Sqrt(arg)
			val = sinhc(s) * 2 * half
		} else {
			s := math.Sqrt(-arg)
			val = sincFn(s) * 2 * half
		}
		out[i] = val / besselI0(k.beta)
	}
	return out
}

func sinhc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sinh(x) / x
}

func sincFn(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(x) / x
}
