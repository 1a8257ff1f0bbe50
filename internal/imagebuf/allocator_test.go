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

package imagebuf

import "testing"

func TestGetFloat64IsZeroed(t *testing.T) {
	a := NewAllocator()
	buf := a.GetFloat64(16)
	for i := range buf {
		buf[i] = 42
	}
	a.PutFloat64(buf)

	buf2 := a.GetFloat64(16)
	for i, v := range buf2 {
		if v != 0 {
			t.Fatalf("GetFloat64 returned dirty buffer at index %d: %v", i, v)
		}
	}
}

func TestGetComplex128RoundTrip(t *testing.T) {
	a := NewAllocator()
	buf := a.GetComplex128(8)
	if len(buf) != 8 {
		t.Fatalf("len = %d, want 8", len(buf))
	}
	a.PutComplex128(buf)
	buf2 := a.GetComplex128(8)
	if cap(buf2) < 8 {
		t.Fatalf("cap = %d, want >= 8", cap(buf2))
	}
}

func TestClearDoesNotPanic(t *testing.T) {
	a := NewAllocator()
	buf := a.GetFloat64(4)
	a.PutFloat64(buf)
	a.Clear()
	buf2 := a.GetFloat64(4)
	if len(buf2) != 4 {
		t.Fatalf("len after Clear = %d, want 4", len(buf2))
	}
}
