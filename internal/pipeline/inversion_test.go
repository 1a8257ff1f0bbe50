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
	"testing"

	"github.com/radioimager/wstack/internal/band"
	"github.com/radioimager/wstack/internal/msio"
)

// fakeGrid is a minimal InversionGrid double that records the accumulated
// samples per layer. It does not track which goroutine wrote a layer;
// writerOf is never filled.
type fakeGrid struct {
	mu          sync.Mutex
	layerCount  int
	writerOf    map[int]int64 // layer -> goroutine id seen so far (best-effort via a counter)
	accumulated map[int]complex128
	minW, maxW  float64
}

func newFakeGrid(layerCount int, minW, maxW float64) *fakeGrid {
	return &fakeGrid{
		layerCount:  layerCount,
		writerOf:    make(map[int]int64),
		accumulated: make(map[int]complex128),
		minW:        minW, maxW: maxW,
	}
}

func (g *fakeGrid) WToLayer(w float64) int {
	if g.maxW <= g.minW {
		return 0
	}
	idx := int((w - g.minW) / (g.maxW - g.minW) * float64(g.layerCount))
	if idx < 0 {
		idx = 0
	}
	if idx >= g.layerCount {
		idx = g.layerCount - 1
	}
	return idx
}

func (g *fakeGrid) IsInLayerRange(w1, w2 float64) bool { return true }

func (g *fakeGrid) AddDataSample(sample complex128, uLambda, vLambda, wLambda float64) {
	layer := g.WToLayer(wLambda)
	g.mu.Lock()
	g.accumulated[layer] += sample
	g.mu.Unlock()
}

func makeTestMS() (*msio.MemProvider, band.Multi) {
	mb := band.Multi{Bands: []band.Data{{Frequencies: []float64{band.SpeedOfLight}}}}
	rows := []msio.Row{
		{U: 10, V: 0, W: 1, DataDescId: 0, Data: []complex64{1}, Weights: []float32{1}, RowId: 0},
		{U: 0, V: 10, W: 2, DataDescId: 0, Data: []complex64{1}, Weights: []float32{1}, RowId: 1},
		{U: -10, V: 0, W: 3, DataDescId: 0, Data: []complex64{1}, Weights: []float32{1}, RowId: 2},
		{U: 0, V: -10, W: 4, DataDescId: 0, Data: []complex64{1}, Weights: []float32{1}, RowId: 3},
	}
	return msio.NewMemProvider(rows, msio.SimpleHandle{}, 0), mb
}

func TestInversionPipelineAccumulatesAllMatchingRows(t *testing.T) {
	provider, mb := makeTestMS()
	grid := newFakeGrid(4, 0, 5)
	ip := NewInversionPipeline(Params{WorkerCount: 2})

	if err := ip.Run(provider, mb, grid); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ip.MatchingRows != 4 {
		t.Errorf("MatchingRows = %d, want 4", ip.MatchingRows)
	}
	if ip.TotalWeight != 4 {
		t.Errorf("TotalWeight = %v, want 4 (natural weighting, unit weights)", ip.TotalWeight)
	}

	var total complex128
	for _, v := range grid.accumulated {
		total += v
	}
	if total != complex(4, 0) {
		t.Errorf("accumulated total = %v, want 4+0i", total)
	}
}

func TestInversionPipelineSquaredWeighting(t *testing.T) {
	provider, mb := makeTestMS()
	grid := newFakeGrid(4, 0, 5)
	ip := NewInversionPipeline(Params{WorkerCount: 1, VisWeighting: Squared})
	if err := ip.Run(provider, mb, grid); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var total complex128
	for _, v := range grid.accumulated {
		total += v
	}
	if total != complex(4, 0) {
		t.Errorf("squared weighting with unit weights should equal natural: got %v", total)
	}
}
