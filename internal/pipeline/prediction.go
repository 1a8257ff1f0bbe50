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

package pipeline

import (
	"sync"

	"github.com/radioimager/wstack/internal/band"
	"github.com/radioimager/wstack/internal/msio"
)

// PredictionGrid is the subset of *gridder.Gridder the prediction pipeline
// needs.
type PredictionGrid interface {
	IsInLayerRange(w1, w2 float64) bool
	SampleData(buf []complex128, dataDescId int, u, v, w float64) error
}

// PredictionPipeline degrids one measurement set's rows during a single
// pass: a pre-scan collects matching row metadata without reading data,
// then P calc workers call SampleData concurrently and a single writer
// thread serializes WriteModel calls.
type PredictionPipeline struct {
	params Params

	MatchingRows int64
	SkippedRows  int64
}

// NewPredictionPipeline returns a pipeline configured by params.
func NewPredictionPipeline(params Params) *PredictionPipeline {
	return &PredictionPipeline{params: params.withDefaults()}
}

// Run pre-scans p for matching rows, degrids each through grid, and writes
// the result back via p.WriteModel. Write order need not follow row order.
func (pp *PredictionPipeline) Run(p msio.MSProvider, mb band.Multi, grid PredictionGrid) error {
	items, err := pp.prescan(p, mb, grid)
	if err != nil {
		return err
	}

	calcQ := make(chan PredictionWorkItem, pp.params.QueueCapacity)
	writeQ := make(chan PredictionWorkItem, pp.params.QueueCapacity)

	var workers sync.WaitGroup
	P := pp.params.WorkerCount
	workers.Add(P)
	calcErrs := make([]error, P)
	for i := 0; i < P; i++ {
		go func(i int) {
			defer workers.Done()
			for item := range calcQ {
				if err := grid.SampleData(item.Buf, item.DataDescId, item.U, item.V, item.W); err != nil {
					calcErrs[i] = err
					continue
				}
				writeQ <- item
			}
		}(i)
	}

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- pp.writeBack(p, writeQ)
	}()

	for _, item := range items {
		calcQ <- item
	}
	close(calcQ)
	workers.Wait()
	close(writeQ)

	for _, e := range calcErrs {
		if e != nil {
			return e
		}
	}
	return <-writerDone
}

// prescan reads all meta rows, filtering by IsInLayerRange, and allocates
// one output buffer per kept row. No data is read in this phase.
func (pp *PredictionPipeline) prescan(p msio.MSProvider, mb band.Multi, grid PredictionGrid) ([]PredictionWorkItem, error) {
	p.Reset()
	sel := pp.params.Selection
	var items []PredictionWorkItem

	for p.CurrentRowAvailable() {
		u, v, w, dataDescId, err := p.ReadMeta()
		if err != nil {
			return nil, err
		}
		b, err := mb.Band(dataDescId)
		if err != nil {
			p.NextRow()
			continue
		}
		start, end := sel.StartChannel, sel.EndChannel
		if end <= start {
			end = b.ChannelCount()
		}
		n := end - start
		lambdaMin, lambdaMax := b.Wavelength(end-1), b.Wavelength(start)
		if lambdaMin > lambdaMax {
			lambdaMin, lambdaMax = lambdaMax, lambdaMin
		}
		if !grid.IsInLayerRange(w/lambdaMax, w/lambdaMin) {
			pp.SkippedRows++
			p.NextRow()
			continue
		}
		items = append(items, PredictionWorkItem{
			U: u, V: v, W: w, DataDescId: dataDescId, RowId: p.RowId(),
			Buf: make([]complex128, n),
		})
		pp.MatchingRows++
		p.NextRow()
	}
	return items, nil
}

func (pp *PredictionPipeline) writeBack(p msio.MSProvider, writeQ <-chan PredictionWorkItem) error {
	for item := range writeQ {
		out := make([]complex64, len(item.Buf))
		for i, v := range item.Buf {
			out[i] = complex64(v)
		}
		if err := p.WriteModel(item.RowId, out); err != nil {
			return err
		}
	}
	return nil
}
