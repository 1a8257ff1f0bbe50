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

// Package pipeline streams visibilities between a measurement-set provider
// and the gridder through bounded, w-layer-partitioned lanes. One producer
// goroutine reads a provider row by row; one fan-out goroutine hashes each
// channel to a worker lane by w-layer; P worker goroutines each own a
// disjoint set of layers for the duration of a pass, so no locking is
// needed inside the gridder's hot accumulation loop.
package pipeline

// InversionWorkItem is one measurement-set row queued for fan-out.
// Ownership of Data transfers from the producer to the fan-out stage,
// which frees it after expanding it into per-channel samples.
type InversionWorkItem struct {
	U, V, W     float64
	DataDescId  int
	Data        []complex128 // length == selected channel count for DataDescId
	Wavelengths []float64    // per-channel wavelength, same length as Data
}

// InversionWorkSample is a single channel's contribution, already
// converted to wavelengths, ready for gridder.AddDataSample.
type InversionWorkSample struct {
	ULambda, VLambda, WLambda float64
	Sample                    complex128
}

// PredictionWorkItem is one row queued for degridding. Buf is allocated
// by the pre-scan stage and freed by the writer after WriteModel.
type PredictionWorkItem struct {
	U, V, W    float64
	DataDescId int
	RowId      int64
	Buf        []complex128
}

// VisibilityWeighting mirrors orchestrate.VisibilityWeighting; duplicated
// here (rather than imported) to keep pipeline free of a dependency on
// orchestrate, which itself depends on pipeline.
type VisibilityWeighting int

const (
	Normal VisibilityWeighting = iota
	Squared
	Unit
)

// ImagingWeighting mirrors orchestrate.ImagingWeighting.
type ImagingWeighting int

const (
	Natural ImagingWeighting = iota
	Uniform
	Briggs
	DistanceWeighted
)

// DensityWeights supplies a non-negative density weight for a (u,v)
// position in wavelengths.
type DensityWeights interface {
	GetWeight(uLambda, vLambda float64) float64
}

// Selection restricts which channels and field of a measurement set are
// streamed through the pipeline.
type Selection struct {
	StartChannel, EndChannel int
	FieldId                  int
}

// Params configures one InversionPipeline or PredictionPipeline run.
type Params struct {
	Selection       Selection
	VisWeighting    VisibilityWeighting
	ImgWeighting    ImagingWeighting
	Weights         DensityWeights
	PSF             bool
	DoSubtractModel bool
	PhaseCentreDL   float64
	PhaseCentreDM   float64
	WorkerCount     int
	QueueCapacity   int // WorkQ / CalcQ / WriteQ capacity, default 2048
	LaneBufferSize  int // per-writer batch size before a lane send (raised to the row's channel count if larger), default 2*WorkerCount
}

func (p Params) withDefaults() Params {
	if p.WorkerCount <= 0 {
		p.WorkerCount = 1
	}
	if p.QueueCapacity <= 0 {
		p.QueueCapacity = 2048
	}
	if p.LaneBufferSize <= 0 {
		p.LaneBufferSize = 2 * p.WorkerCount
	}
	return p
}
