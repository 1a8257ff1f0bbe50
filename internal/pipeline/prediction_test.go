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

import "testing"

type fakePredictGrid struct{}

func (fakePredictGrid) IsInLayerRange(w1, w2 float64) bool { return true }

func (fakePredictGrid) SampleData(buf []complex128, dataDescId int, u, v, w float64) error {
	for i := range buf {
		buf[i] = complex(u+v+w, 0)
	}
	return nil
}

func TestPredictionPipelineWritesEveryMatchingRow(t *testing.T) {
	provider, mb := makeTestMS()
	pp := NewPredictionPipeline(Params{WorkerCount: 2})

	if err := pp.Run(provider, mb, fakePredictGrid{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pp.MatchingRows != 4 {
		t.Errorf("MatchingRows = %d, want 4", pp.MatchingRows)
	}
	for rowId := int64(0); rowId < 4; rowId++ {
		if _, ok := provider.Written(rowId); !ok {
			t.Errorf("row %d was never written back", rowId)
		}
	}
}
