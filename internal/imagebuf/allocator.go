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

// Package imagebuf provides a pooled allocator for the large float64 and
// complex128 buffers a w-stacking pass cycles through. Reusing buffers
// across layers and passes matters here: a single pass can hold dozens of
// grid-sized layers live at once, and letting the garbage collector reclaim
// and re-zero each of them every pass is wasteful.
package imagebuf

import (
	"runtime"
	"sync"
)

// Allocator hands out zeroed []float64 and []complex128 slices of a fixed
// set of sizes, backed by one sync.Pool per distinct size. Buffers are
// expected to flow back through Put once a layer or image is finalized.
type Allocator struct {
	real struct {
		sync.RWMutex
		m map[int]*sync.Pool
	}
	cplx struct {
		sync.RWMutex
		m map[int]*sync.Pool
	}
}

// NewAllocator returns a fresh, empty Allocator.
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.real.m = make(map[int]*sync.Pool)
	a.cplx.m = make(map[int]*sync.Pool)
	return a
}

func (a *Allocator) realPool(size int) *sync.Pool {
	a.real.RLock()
	pool := a.real.m[size]
	a.real.RUnlock()
	if pool == nil {
		pool = &sync.Pool{New: func() interface{} { return make([]float64, size) }}
		a.real.Lock()
		a.real.m[size] = pool
		a.real.Unlock()
	}
	return pool
}

func (a *Allocator) cplxPool(size int) *sync.Pool {
	a.cplx.RLock()
	pool := a.cplx.m[size]
	a.cplx.RUnlock()
	if pool == nil {
		pool = &sync.Pool{New: func() interface{} { return make([]complex128, size) }}
		a.cplx.Lock()
		a.cplx.m[size] = pool
		a.cplx.Unlock()
	}
	return pool
}

// GetFloat64 returns a zeroed []float64 of exactly size elements.
func (a *Allocator) GetFloat64(size int) []float64 {
	buf := a.realPool(size).Get().([]float64)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// PutFloat64 returns buf to the pool for its capacity. The caller must not
// use buf after calling PutFloat64.
func (a *Allocator) PutFloat64(buf []float64) {
	if buf == nil {
		return
	}
	a.realPool(cap(buf)).Put(buf[:cap(buf)])
}

// GetComplex128 returns a zeroed []complex128 of exactly size elements.
func (a *Allocator) GetComplex128(size int) []complex128 {
	buf := a.cplxPool(size).Get().([]complex128)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// PutComplex128 returns buf to the pool for its capacity. The caller must
// not use buf after calling PutComplex128.
func (a *Allocator) PutComplex128(buf []complex128) {
	if buf == nil {
		return
	}
	a.cplxPool(cap(buf)).Put(buf[:cap(buf)])
}

// Clear drops every pooled buffer and asks the runtime to collect them.
// Intended for use between independent Invert/Predict runs that want a
// clean memory baseline rather than reuse across very differently sized
// images.
func (a *Allocator) Clear() {
	a.real.Lock()
	a.real.m = make(map[int]*sync.Pool)
	a.real.Unlock()

	a.cplx.Lock()
	a.cplx.m = make(map[int]*sync.Pool)
	a.cplx.Unlock()

	runtime.GC()
}
