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

import "fmt"

// Row is one fully materialized measurement-set row, used by MemProvider.
type Row struct {
	U, V, W    float64
	DataDescId int
	Data       []complex64
	Model      []complex64
	Weights    []float32
	RowId      int64
}

// MemProvider is a trivial in-memory MSProvider, used by the core's own
// tests and by cmd/wstackdemo. It never touches disk.
type MemProvider struct {
	Rows    []Row
	Handle  MeasurementSetHandle
	TStart  float64
	cursor  int
	written map[int64][]complex64
}

// NewMemProvider returns a MemProvider over rows, using handle for its
// subtable answers.
func NewMemProvider(rows []Row, handle MeasurementSetHandle, startTime float64) *MemProvider {
	return &MemProvider{Rows: rows, Handle: handle, TStart: startTime, written: make(map[int64][]complex64)}
}

func (p *MemProvider) Reset() { p.cursor = 0 }

func (p *MemProvider) CurrentRowAvailable() bool { return p.cursor < len(p.Rows) }

func (p *MemProvider) NextRow() { p.cursor++ }

func (p *MemProvider) ReadMeta() (u, v, w float64, dataDescId int, err error) {
	if !p.CurrentRowAvailable() {
		return 0, 0, 0, 0, fmt.Errorf("msio: ReadMeta past end of rows")
	}
	r := p.Rows[p.cursor]
	return r.U, r.V, r.W, r.DataDescId, nil
}

func (p *MemProvider) ReadData(buf []complex64) error {
	r := p.Rows[p.cursor]
	copy(buf, r.Data)
	return nil
}

func (p *MemProvider) ReadModel(buf []complex64) error {
	r := p.Rows[p.cursor]
	copy(buf, r.Model)
	return nil
}

func (p *MemProvider) ReadWeights(buf []float32) error {
	r := p.Rows[p.cursor]
	copy(buf, r.Weights)
	return nil
}

func (p *MemProvider) RowId() int64 { return p.Rows[p.cursor].RowId }

func (p *MemProvider) ReopenRW() error { return nil }

func (p *MemProvider) WriteModel(rowId int64, buf []complex64) error {
	cp := make([]complex64, len(buf))
	copy(cp, buf)
	p.written[rowId] = cp
	return nil
}

// Written returns the buffer last written for rowId, for assertions in tests.
func (p *MemProvider) Written(rowId int64) ([]complex64, bool) {
	buf, ok := p.written[rowId]
	return buf, ok
}

func (p *MemProvider) MS() MeasurementSetHandle { return p.Handle }

func (p *MemProvider) StartTime() float64 { return p.TStart }

// SimpleHandle is a MeasurementSetHandle with fixed answers, enough for
// tests that don't exercise antenna geometry or a shifted phase centre.
type SimpleHandle struct {
	Antennas []([3]float64)
	RA, Dec  float64
	DL, DM   float64
}

func (h SimpleHandle) AntennaPositions() [][3]float64 { return h.Antennas }
func (h SimpleHandle) PhaseDirection(fieldId int) (ra, dec float64) { return h.RA, h.Dec }
func (h SimpleHandle) PhaseCentreShift() (dl, dm float64) { return h.DL, h.DM }
