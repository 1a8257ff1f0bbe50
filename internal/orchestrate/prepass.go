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

package orchestrate

import (
	"fmt"
	"math"

	"github.com/radioimager/wstack/internal/band"
	"github.com/radioimager/wstack/internal/msio"
	"github.com/radioimager/wstack/internal/wstackerr"
)

// wRangeResult is the outcome of one measurement set's pre-pass streaming
// scan: the w-range (in wavelengths) of accepted samples, the maximum
// baseline length in wavelengths, and bookkeeping counters.
type wRangeResult struct {
	MinW, MaxW      float64
	MaxBaseline     float64 // wavelengths
	MatchingRows    int64
	TotalRowsSeen   int64
	VisibilityHisto []int64 // not populated by determineWRange
}

// determineWRange performs the single streaming scan described in the
// w-range determination design note: it restricts to samples whose
// gridded (x,y) lies strictly inside the image bounds, whose imaging
// weight is non-zero, and whose raw weight is non-zero, and tracks the
// widest (u,v,w) envelope it has seen so it can skip the inner per-channel
// loop whenever a row cannot possibly widen it.
func determineWRange(p msio.MSProvider, mb band.Multi, sel Selection, cfg Config) (wRangeResult, error) {
	var res wRangeResult
	haveAny := false

	p.Reset()
	weightBuf := make([]float32, mb.MaxChannelCount())

	for p.CurrentRowAvailable() {
		res.TotalRowsSeen++
		u, v, w, dataDescId, err := p.ReadMeta()
		if err != nil {
			return res, err
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
		if end > b.ChannelCount() {
			return res, wstackerr.NewBadInput("orchestrate: end channel %d exceeds band channel count %d", end, b.ChannelCount())
		}

		lambdaMin, lambdaMax := math.Inf(1), math.Inf(-1)
		for ch := start; ch < end; ch++ {
			lam := b.Wavelength(ch)
			if lam < lambdaMin {
				lambdaMin = lam
			}
			if lam > lambdaMax {
				lambdaMax = lam
			}
		}
		if lambdaMin > lambdaMax {
			p.NextRow()
			continue
		}

		wHi := math.Abs(w) / lambdaMin
		wLo := math.Abs(w) / lambdaMax
		baseline := math.Sqrt(u*u + v*v + w*w)
		baselineHi := baseline / lambdaMin

		widensEnvelope := !haveAny || wHi > res.MaxW || wLo < res.MinW || baselineHi > res.MaxBaseline
		if !widensEnvelope {
			p.NextRow()
			continue
		}

		if err := p.ReadWeights(weightBuf[:end-start]); err != nil {
			return res, err
		}

		rowMatched := false
		for ch := start; ch < end; ch++ {
			weight := weightBuf[ch-start]
			if weight == 0 {
				continue
			}
			lam := b.Wavelength(ch)
			uL, vL, wL := u/lam, v/lam, w/lam

			x := uL*cfg.PixelScaleX*float64(cfg.Width) + float64(cfg.Width)/2
			y := vL*cfg.PixelScaleY*float64(cfg.Height) + float64(cfg.Height)/2
			if math.Abs(x-float64(cfg.Width)/2) >= float64(cfg.Width)/2 || math.Abs(y-float64(cfg.Height)/2) >= float64(cfg.Height)/2 {
				continue
			}
			if cfg.Weights != nil && cfg.ImgWeighting != Natural {
				if cfg.Weights.GetWeight(uL, vL) == 0 {
					continue
				}
			}

			rowMatched = true
			if !haveAny {
				res.MinW, res.MaxW = wL, wL
				haveAny = true
			} else {
				if wL < res.MinW {
					res.MinW = wL
				}
				if wL > res.MaxW {
					res.MaxW = wL
				}
			}
			baselineLambda := baseline / lam
			if baselineLambda > res.MaxBaseline {
				res.MaxBaseline = baselineLambda
			}
		}
		if rowMatched {
			res.MatchingRows++
		}
		p.NextRow()
	}

	if !haveAny {
		res.MinW, res.MaxW = 0, 0
	} else if sel.WLimit > 0 {
		limited := res.MaxW * (1 - sel.WLimit)
		if limited < res.MinW {
			limited = res.MinW
		}
		res.MaxW = limited
	}
	return res, nil
}

// beamSize returns 1/maxBaseline in radians, or 0 if maxBaseline is 0.
func beamSize(maxBaseline float64) float64 {
	if maxBaseline <= 0 {
		return 0
	}
	return 1 / maxBaseline
}

// smallInversionSize implements the Nyquist-justified reduced internal grid
// size: round 2T/beamSize up to a multiple of 4, clamp to [32, width].
func smallInversionSize(width int, pixelScale, bmSize float64) int {
	if bmSize <= 0 {
		return width
	}
	t := float64(width) * pixelScale
	n := int(math.Ceil(2 * t / bmSize))
	n = ((n + 3) / 4) * 4
	if n < 32 {
		n = 32
	}
	if n > width {
		n = width
	}
	return n
}

// suggestedLayerCount implements the suggested-layer-count formula from
// the pre-pass design note, including the P-vs-suggestion reconciliation.
func suggestedLayerCount(cfg Config, minW, maxW float64, isComplexVis bool, internalW, internalH int, memBudget uint64) int {
	l := float64(internalW)*cfg.PixelScaleX/2 + math.Abs(cfg.PhaseCentreDL)
	m := float64(internalH)*cfg.PixelScaleY/2 + math.Abs(cfg.PhaseCentreDM)
	lm2 := l*l + m*m

	cMinW := minW
	if isComplexVis {
		cMinW = -maxW
	}

	var radians float64
	if lm2 < 1 {
		radians = 2 * math.Pi * (maxW - cMinW) * (1 - math.Sqrt(1-lm2))
	} else {
		radians = 2 * math.Pi * (maxW - cMinW)
	}

	suggestion := int(math.Ceil(radians))
	if suggestion < 1 {
		suggestion = 1
	}

	p := cfg.WorkerCount
	if suggestion < p {
		bytesForP := uint64(4) * uint64(p) * 8 * uint64(internalW) * uint64(internalH)
		if bytesForP <= memBudget {
			suggestion = p
		} else if cfg.Log != nil {
			// keep the low value and warn
			fmt.Fprintf(cfg.Log, "warning: suggested w-layer count %d is below the %d worker threads, but %d layers do not fit the memory budget\n", suggestion, p, p)
		}
	}
	return suggestion
}
