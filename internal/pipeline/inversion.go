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
	"math"
	"sync"

	"github.com/radioimager/wstack/internal/band"
	"github.com/radioimager/wstack/internal/msio"
)

// InversionGrid is the subset of *gridder.Gridder the inversion pipeline
// needs, named here so pipeline tests can substitute a fake.
type InversionGrid interface {
	WToLayer(w float64) int
	IsInLayerRange(w1, w2 float64) bool
	AddDataSample(sample complex128, uLambda, vLambda, wLambda float64)
}

// InversionPipeline streams one measurement set's rows into a gridder
// during a single pass, partitioned by w-layer into P worker lanes.
type InversionPipeline struct {
	params Params

	// TotalWeight accumulates only on the producer goroutine, so it needs
	// no synchronization.
	TotalWeight  float64
	MatchingRows int64
	SkippedRows  int64
}

// NewInversionPipeline returns a pipeline configured by params.
func NewInversionPipeline(params Params) *InversionPipeline {
	return &InversionPipeline{params: params.withDefaults()}
}

type laneBatch = []InversionWorkSample

// Run drives one full producer → fan-out → worker cycle over every
// remaining row of p, gridding into grid. It blocks until the provider is
// exhausted and every worker has drained its lane.
func (ip *InversionPipeline) Run(p msio.MSProvider, mb band.Multi, grid InversionGrid) error {
	P := ip.params.WorkerCount
	lanes := make([]chan laneBatch, P)
	for i := range lanes {
		lanes[i] = make(chan laneBatch, 4)
	}

	workQ := make(chan InversionWorkItem, ip.params.QueueCapacity)

	var wg sync.WaitGroup
	wg.Add(P)
	for i := 0; i < P; i++ {
		go ip.worker(lanes[i], grid, &wg)
	}

	fanOutDone := make(chan struct{})
	go func() {
		ip.fanOut(workQ, lanes, grid)
		close(fanOutDone)
	}()

	err := ip.produce(p, mb, grid, workQ)
	close(workQ)
	<-fanOutDone
	wg.Wait()
	return err
}

// produce scans p row by row, rejects rows outside the gridder's current
// pass window, applies PSF/model-subtraction, visibility weighting and
// imaging weighting, and pushes one InversionWorkItem per matching row.
func (ip *InversionPipeline) produce(p msio.MSProvider, mb band.Multi, grid InversionGrid, workQ chan<- InversionWorkItem) error {
	p.Reset()
	sel := ip.params.Selection
	dl, dm := ip.params.PhaseCentreDL, ip.params.PhaseCentreDM
	shifted := dl != 0 || dm != 0

	dataBuf := make([]complex64, mb.MaxChannelCount())
	modelBuf := make([]complex64, mb.MaxChannelCount())
	weightBuf := make([]float32, mb.MaxChannelCount())

	for p.CurrentRowAvailable() {
		u, v, w, dataDescId, err := p.ReadMeta()
		if err != nil {
			return err
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

		lambdaAtStart := b.Wavelength(start)
		lambdaAtEnd := b.Wavelength(end - 1)
		lambdaMin, lambdaMax := lambdaAtStart, lambdaAtEnd
		if lambdaMin > lambdaMax {
			lambdaMin, lambdaMax = lambdaMax, lambdaMin
		}
		if !grid.IsInLayerRange(w/lambdaMax, w/lambdaMin) {
			ip.SkippedRows++
			p.NextRow()
			continue
		}

		samples := make([]complex128, n)
		wavelengths := make([]float64, n)
		for ch := 0; ch < n; ch++ {
			wavelengths[ch] = b.Wavelength(start + ch)
		}
		if err := p.ReadWeights(weightBuf[:n]); err != nil {
			return err
		}
		if ip.params.PSF {
			for ch := 0; ch < n; ch++ {
				samples[ch] = complex(float64(weightBuf[ch]), 0)
			}
			if shifted {
				for ch := 0; ch < n; ch++ {
					lam := b.Wavelength(start + ch)
					phase := 2 * math.Pi * (w / lam) * (math.Sqrt(1-dl*dl-dm*dm) - 1)
					re, im := math.Cos(phase), math.Sin(phase)
					s := samples[ch]
					samples[ch] = complex(real(s)*re-imag(s)*im, real(s)*im+imag(s)*re)
				}
			}
		} else {
			if err := p.ReadData(dataBuf[:n]); err != nil {
				return err
			}
			for ch := 0; ch < n; ch++ {
				samples[ch] = complex(float64(real(dataBuf[ch])), float64(imag(dataBuf[ch])))
			}
			if ip.params.DoSubtractModel {
				if err := p.ReadModel(modelBuf[:n]); err != nil {
					return err
				}
				for ch := 0; ch < n; ch++ {
					samples[ch] -= complex(float64(real(modelBuf[ch])), float64(imag(modelBuf[ch])))
				}
			}
		}

		baselineMetres := math.Sqrt(u*u + v*v + w*w)
		rowMatched := false
		for ch := 0; ch < n; ch++ {
			weight := float64(weightBuf[ch])
			switch ip.params.VisWeighting {
			case Squared:
				samples[ch] *= complex(weight, 0)
			case Unit:
				if weight == 0 {
					samples[ch] = 0
				} else {
					samples[ch] /= complex(weight, 0)
				}
			}

			lam := b.Wavelength(start + ch)
			uL, vL := u/lam, v/lam
			imgWeight := 1.0
			if ip.params.ImgWeighting != Natural && ip.params.ImgWeighting != DistanceWeighted && ip.params.Weights != nil {
				imgWeight = ip.params.Weights.GetWeight(uL, vL)
			}
			if imgWeight == 0 || weight == 0 {
				samples[ch] = 0
				continue
			}
			samples[ch] *= complex(imgWeight, 0)

			if ip.params.ImgWeighting == DistanceWeighted {
				ip.TotalWeight += weight * baselineMetres
			} else {
				ip.TotalWeight += imgWeight * weight
			}
			rowMatched = true
		}
		if rowMatched {
			ip.MatchingRows++
			workQ <- InversionWorkItem{U: u, V: v, W: w, DataDescId: dataDescId, Data: samples, Wavelengths: wavelengths}
		} else {
			ip.SkippedRows++
		}
		p.NextRow()
	}
	return nil
}

func (ip *InversionPipeline) fanOut(workQ <-chan InversionWorkItem, lanes []chan laneBatch, grid InversionGrid) {
	P := len(lanes)
	batches := make([]laneBatch, P)
	for item := range workQ {
		batchSize := ip.params.LaneBufferSize
		if len(item.Data) > batchSize {
			batchSize = len(item.Data)
		}
		for ch, sample := range item.Data {
			lam := item.Wavelengths[ch]
			uL, vL, wL := item.U/lam, item.V/lam, item.W/lam
			lane := mod(grid.WToLayer(wL), P)
			batches[lane] = append(batches[lane], InversionWorkSample{
				ULambda: uL,
				VLambda: vL,
				WLambda: wL,
				Sample:  sample,
			})
			if len(batches[lane]) >= batchSize {
				lanes[lane] <- batches[lane]
				batches[lane] = nil
			}
		}
	}
	for i, b := range batches {
		if len(b) > 0 {
			lanes[i] <- b
		}
	}
	for _, l := range lanes {
		close(l)
	}
}

func mod(a, p int) int {
	a %= p
	if a < 0 {
		a += p
	}
	return a
}

func (ip *InversionPipeline) worker(lane <-chan laneBatch, grid InversionGrid, wg *sync.WaitGroup) {
	defer wg.Done()
	for batch := range lane {
		for _, s := range batch {
			grid.AddDataSample(s.Sample, s.ULambda, s.VLambda, s.WLambda)
		}
	}
}
