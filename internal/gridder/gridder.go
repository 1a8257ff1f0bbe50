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

// Package gridder implements the w-stacking core: the memory-bounded
// multi-pass layer scheduler, the convolutional gridding/degridding
// against oversampled antialiasing kernels, and the per-layer FFT plus
// w-term phase correction that ties layers back into a single image.
package gridder

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/radioimager/wstack/internal/band"
	"github.com/radioimager/wstack/internal/imagebuf"
	"github.com/radioimager/wstack/internal/kernel"
	"github.com/radioimager/wstack/internal/wstackerr"
)

// WLayerPlan is the outcome of PrepareWLayers: how many w-layers exist, how
// many fit in one pass, and the resulting pass count.
type WLayerPlan struct {
	DeltaW        float64
	MinW          float64
	MaxW          float64
	LayerCount    int
	LayersPerPass int
	PassCount     int
}

// Config is the explicit, immutable-after-construction configuration a
// Gridder needs. It stands in for the base-class-style interface the
// original algorithm reads its parameters from.
type Config struct {
	Width, Height            int
	PixelScaleX, PixelScaleY float64 // radians/pixel
	KernelSize               int     // support width in grid cells, e.g. 7
	Oversampling             int     // kernel table samples per grid cell
	KernelBeta               float64 // <=0 picks a default
	IsComplex                bool    // whether an imaginary image plane is tracked
	NormalizeForWeighting    bool
	PhaseCentreDL            float64
	PhaseCentreDM            float64
}

// layerState is one w-layer's complex grid plus its accumulated kernel
// weight, used for gridding diagnostics.
type layerState struct {
	grid       []complex128
	weightSum  float64
}

// Gridder owns every layer buffer and the accumulated output image. It is
// safe for AddDataSample/SampleData to be called concurrently by different
// goroutines only when each goroutine owns a disjoint set of layers for the
// current pass (lane = WToLayer(w) mod P) — see the pipeline package.
type Gridder struct {
	cfg   Config
	alloc *imagebuf.Allocator
	kern  *kernel.Kernel
	taperX, taperY []float64

	plan WLayerPlan

	layers       []layerState
	currentPass  int
	passBase     int // first global layer index covered by the current pass
	passLayerCnt int // number of layers covered by the current pass

	bands map[int]band.Data

	realImage []float64
	imagImage []float64

	rowFFT *fourier.CmplxFFT
	colFFT *fourier.CmplxFFT
}

// New constructs a Gridder for the given configuration and allocator. The
// allocator may be shared across multiple Gridders (e.g. across MSs) to
// amortise buffer reuse.
func New(cfg Config, alloc *imagebuf.Allocator) *Gridder {
	if cfg.KernelSize <= 0 {
		cfg.KernelSize = 7
	}
	if cfg.Oversampling <= 0 {
		cfg.Oversampling = 63
	}
	k := kernel.New(cfg.KernelSize, cfg.Oversampling, cfg.KernelBeta)
	return &Gridder{
		cfg:    cfg,
		alloc:  alloc,
		kern:   k,
		taperX: k.Taper(cfg.Width),
		taperY: k.Taper(cfg.Height),
		bands:  make(map[int]band.Data),
		rowFFT: fourier.NewCmplxFFT(cfg.Width),
		colFFT: fourier.NewCmplxFFT(cfg.Height),
	}
}

// PrepareWLayers plans the multi-pass layer schedule so that each pass's
// layers fit within memBudget, reserving 70% of the caller's memory
// estimate for this allocator per the design heuristic.
func (g *Gridder) PrepareWLayers(nLayers int, memBudget uint64, minW, maxW float64) error {
	if nLayers < 1 {
		nLayers = 1
	}
	usable := uint64(float64(memBudget) * 0.7)
	bytesPerLayer := uint64(g.cfg.Width) * uint64(g.cfg.Height) * 16 * 2 // complex128, double-buffered for the FFT stage
	if bytesPerLayer == 0 {
		bytesPerLayer = 1
	}
	layersPerPass := int(usable / bytesPerLayer)
	if layersPerPass < 1 {
		return wstackerr.NewResourceExhaustion(
			"memory budget %d bytes (70%% usable %d) cannot hold a single %dx%d w-layer (%d bytes)",
			memBudget, usable, g.cfg.Width, g.cfg.Height, bytesPerLayer)
	}
	if layersPerPass > nLayers {
		layersPerPass = nLayers
	}

	deltaW := 0.0
	if maxW > minW {
		deltaW = (maxW - minW) / float64(nLayers)
	}

	g.plan = WLayerPlan{
		DeltaW:        deltaW,
		MinW:          minW,
		MaxW:          maxW,
		LayerCount:    nLayers,
		LayersPerPass: layersPerPass,
		PassCount:     (nLayers + layersPerPass - 1) / layersPerPass,
	}
	g.layers = make([]layerState, layersPerPass)
	size := g.cfg.Width * g.cfg.Height
	for i := range g.layers {
		g.layers[i].grid = g.alloc.GetComplex128(size)
	}
	g.realImage = g.alloc.GetFloat64(size)
	if g.cfg.IsComplex {
		g.imagImage = g.alloc.GetFloat64(size)
	}
	return nil
}

// Plan returns a copy of the current layer schedule.
func (g *Gridder) Plan() WLayerPlan { return g.plan }

// NPasses returns ⌈LayerCount / LayersPerPass⌉.
func (g *Gridder) NPasses() int { return g.plan.PassCount }

// PrepareBand caches the spectral windows referenced by a measurement set
// so AddDataSample/SampleData callers need only pass a dataDescId.
func (g *Gridder) PrepareBand(mb band.Multi) {
	g.bands = make(map[int]band.Data, len(mb.Bands))
	for id, b := range mb.Bands {
		g.bands[id] = b
	}
}

// WToLayer returns the global, pass-independent layer index that a
// wavelength-scaled w coordinate hashes to, clamped to [0, LayerCount).
// This is deliberately stable across passes: `lane = WToLayer(w) mod P`
// must hash the same way in every pass for the single-writer-per-layer
// property to hold.
func (g *Gridder) WToLayer(w float64) int {
	if g.plan.DeltaW <= 0 {
		return 0
	}
	idx := int(math.Floor((w - g.plan.MinW) / g.plan.DeltaW))
	if idx < 0 {
		idx = 0
	}
	if idx >= g.plan.LayerCount {
		idx = g.plan.LayerCount - 1
	}
	return idx
}

// IsInLayerRange reports whether the closed interval [min(w1,w2),max(w1,w2)]
// intersects the current pass's w window. Both wavelengths bounding a row's
// channel range must be tested, since a single row spans a range of w/λ.
func (g *Gridder) IsInLayerRange(w1, w2 float64) bool {
	lo, hi := w1, w2
	if lo > hi {
		lo, hi = hi, lo
	}
	passLo := g.plan.MinW + float64(g.passBase)*g.plan.DeltaW
	passHi := g.plan.MinW + float64(g.passBase+g.passLayerCnt)*g.plan.DeltaW
	return hi >= passLo && lo <= passHi
}

// StartInversionPass zeroes every layer grid owned by this pass and
// records the pass's global layer window.
func (g *Gridder) StartInversionPass(pass int) error {
	g.currentPass = pass
	g.passBase = pass * g.plan.LayersPerPass
	g.passLayerCnt = g.plan.LayersPerPass
	if g.passBase+g.passLayerCnt > g.plan.LayerCount {
		g.passLayerCnt = g.plan.LayerCount - g.passBase
	}
	for i := range g.layers {
		for j := range g.layers[i].grid {
			g.layers[i].grid[j] = 0
		}
		g.layers[i].weightSum = 0
	}
	return nil
}

// AddDataSample convolves a single-channel visibility into the layer that
// owns its w coordinate, if that layer is part of the current pass's
// window. Must only be called by the unique worker thread that owns the
// destination layer's partition for this pass.
func (g *Gridder) AddDataSample(sample complex128, uLambda, vLambda, wLambda float64) {
	global := g.WToLayer(wLambda)
	if global < g.passBase || global >= g.passBase+g.passLayerCnt {
		return // Skip: outside current pass w-window
	}
	local := global - g.passBase
	g.convolveAdd(&g.layers[local], sample, uLambda, vLambda)
}

func (g *Gridder) convolveAdd(layer *layerState, sample complex128, uLambda, vLambda float64) {
	gx := uLambda*g.cfg.PixelScaleX*float64(g.cfg.Width) + float64(g.cfg.Width)/2
	gy := vLambda*g.cfg.PixelScaleY*float64(g.cfg.Height) + float64(g.cfg.Height)/2
	half := g.kern.Size() / 2
	cx, cy := int(math.Floor(gx)), int(math.Floor(gy))
	fx, fy := gx-float64(cx), gy-float64(cy)

	for dy := -half; dy < half; dy++ {
		py := cy + dy
		if py < 0 || py >= g.cfg.Height {
			continue
		}
		wy := g.kern.Value(dy, fy)
		for dx := -half; dx < half; dx++ {
			px := cx + dx
			if px < 0 || px >= g.cfg.Width {
				continue
			}
			wx := g.kern.Value(dx, fx)
			w := wx * wy
			if w == 0 {
				continue
			}
			layer.grid[py*g.cfg.Width+px] += sample * complex(w, 0)
			layer.weightSum += w
		}
	}
}

// SampleData degrids one row's channels from the current pass's prediction
// layers into buf, interpolating between the two w-adjacent layers.
func (g *Gridder) SampleData(buf []complex128, dataDescId int, u, v, w float64) error {
	b, ok := g.bands[dataDescId]
	if !ok {
		return wstackerr.NewBadInput("gridder: unknown data description id %d, call PrepareBand first", dataDescId)
	}
	if len(buf) < b.ChannelCount() {
		return wstackerr.NewBadInput("gridder: buffer too small for %d channels", b.ChannelCount())
	}
	for ch := 0; ch < b.ChannelCount(); ch++ {
		lambda := b.Wavelength(ch)
		uL, vL, wL := u/lambda, v/lambda, w/lambda
		buf[ch] = g.sampleOne(uL, vL, wL)
	}
	return nil
}

func (g *Gridder) sampleOne(uLambda, vLambda, wLambda float64) complex128 {
	if g.plan.DeltaW <= 0 {
		return g.degrid(&g.layers[0], uLambda, vLambda)
	}
	t := (wLambda - g.plan.MinW) / g.plan.DeltaW
	layer0 := int(math.Floor(t))
	frac := t - float64(layer0)
	layer1 := layer0 + 1

	var v0, v1 complex128
	if layer0 >= g.passBase && layer0 < g.passBase+g.passLayerCnt {
		v0 = g.degrid(&g.layers[layer0-g.passBase], uLambda, vLambda)
	}
	if layer1 >= g.passBase && layer1 < g.passBase+g.passLayerCnt {
		v1 = g.degrid(&g.layers[layer1-g.passBase], uLambda, vLambda)
	}
	return v0*complex(1-frac, 0) + v1*complex(frac, 0)
}

func (g *Gridder) degrid(layer *layerState, uLambda, vLambda float64) complex128 {
	gx := uLambda*g.cfg.PixelScaleX*float64(g.cfg.Width) + float64(g.cfg.Width)/2
	gy := vLambda*g.cfg.PixelScaleY*float64(g.cfg.Height) + float64(g.cfg.Height)/2
	half := g.kern.Size() / 2
	cx, cy := int(math.Floor(gx)), int(math.Floor(gy))
	fx, fy := gx-float64(cx), gy-float64(cy)

	var sum complex128
	for dy := -half; dy < half; dy++ {
		py := cy + dy
		if py < 0 || py >= g.cfg.Height {
			continue
		}
		wy := g.kern.Value(dy, fy)
		for dx := -half; dx < half; dx++ {
			px := cx + dx
			if px < 0 || px >= g.cfg.Width {
				continue
			}
			wx := g.kern.Value(dx, fx)
			w := wx * wy
			if w == 0 {
				continue
			}
			sum += layer.grid[py*g.cfg.Width+px] * complex(w, 0)
		}
	}
	return sum
}

// FinishInversionPass 2D-inverse-FFTs every layer, applies the per-pixel
// w-term for that layer's centre w, and accumulates into the running image.
func (g *Gridder) FinishInversionPass() error {
	for i := 0; i < g.passLayerCnt; i++ {
		wCenter := g.plan.MinW + (float64(g.passBase+i)+0.5)*g.plan.DeltaW
		g.fftShift2D(g.layers[i].grid)
		g.fft2D(g.layers[i].grid, true)
		g.fftShift2D(g.layers[i].grid)
		g.applyWTermAndAccumulate(g.layers[i].grid, wCenter)
	}
	return nil
}

// fftShift2D swaps the four quadrants of an even-sized W×H grid in place,
// the same operation in both directions. The gridder stores (u,v)=0 at the
// grid's centre pixel and (l,m)=0 at the image's centre pixel, but gonum's
// FFT treats index 0 as the origin of its domain; shifting before and
// after each transform reconciles the two conventions.
func (g *Gridder) fftShift2D(grid []complex128) {
	w, h := g.cfg.Width, g.cfg.Height
	hw, hh := w/2, h/2
	for y := 0; y < hh; y++ {
		for x := 0; x < hw; x++ {
			a := y*w + x
			b := (y+hh)*w + (x + hw)
			grid[a], grid[b] = grid[b], grid[a]

			c := y*w + (x + hw)
			d := (y+hh)*w + x
			grid[c], grid[d] = grid[d], grid[c]
		}
	}
}

// fft2D performs a separable 2D complex FFT over a W×H grid stored
// row-major, forward when inverse is false. gonum's transforms are
// unnormalized; the inverse leg applies the 1/(W*H) scale here, and the
// forward leg is left unscaled.
func (g *Gridder) fft2D(grid []complex128, inverse bool) {
	w, h := g.cfg.Width, g.cfg.Height
	row := make([]complex128, w)
	for y := 0; y < h; y++ {
		copy(row, grid[y*w:(y+1)*w])
		if inverse {
			g.rowFFT.Sequence(row, row)
		} else {
			g.rowFFT.Coefficients(row, row)
		}
		copy(grid[y*w:(y+1)*w], row)
	}
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = grid[y*w+x]
		}
		if inverse {
			g.colFFT.Sequence(col, col)
		} else {
			g.colFFT.Coefficients(col, col)
		}
		for y := 0; y < h; y++ {
			grid[y*w+x] = col[y]
		}
	}

	if inverse {
		scale := complex(1/float64(w*h), 0)
		for i := range grid {
			grid[i] *= scale
		}
	}
}

// applyWTermAndAccumulate multiplies every pixel by exp(2πi·w·(√(1-l²-m²)-1))
// and adds the result into the running real/imaginary image.
func (g *Gridder) applyWTermAndAccumulate(grid []complex128, w float64) {
	wd, ht := g.cfg.Width, g.cfg.Height
	for y := 0; y < ht; y++ {
		m := (float64(y) - float64(ht)/2) * g.cfg.PixelScaleY
		for x := 0; x < wd; x++ {
			l := (float64(x) - float64(wd)/2) * g.cfg.PixelScaleX
			n := 1 - l*l - m*m
			var phase float64
			if n >= 0 {
				phase = 2 * math.Pi * w * (math.Sqrt(n) - 1)
			}
			re, im := math.Cos(phase), math.Sin(phase)
			v := grid[y*wd+x]
			rot := complex(real(v)*re-imag(v)*im, real(v)*im+imag(v)*re)
			g.realImage[y*wd+x] += real(rot)
			if g.cfg.IsComplex {
				g.imagImage[y*wd+x] += imag(rot)
			}
		}
	}
}

// StartPredictionPass resets this pass's layer grids to zero, ready to
// receive InitializePrediction's forward transform.
func (g *Gridder) StartPredictionPass(pass int) error {
	return g.StartInversionPass(pass)
}

// InitializePrediction seeds every layer of the current pass from the
// (already resampled-to-internal-grid) input image: multiply by the
// forward w-term, then forward-FFT, leaving the layer ready for degridding.
func (g *Gridder) InitializePrediction(realImg []float64, imagImg []float64) error {
	wd, ht := g.cfg.Width, g.cfg.Height
	if len(realImg) != wd*ht {
		return wstackerr.NewBadInput("gridder: real image buffer has %d elements, want %d", len(realImg), wd*ht)
	}
	if g.cfg.IsComplex && imagImg == nil {
		return wstackerr.NewBadInput("gridder: complex run requires an imaginary image buffer")
	}
	if !g.cfg.IsComplex && imagImg != nil {
		return wstackerr.NewBadInput("gridder: imaginary image buffer supplied for a non-complex run")
	}
	for i := 0; i < g.passLayerCnt; i++ {
		wCenter := g.plan.MinW + (float64(g.passBase+i)+0.5)*g.plan.DeltaW
		for y := 0; y < ht; y++ {
			m := (float64(y) - float64(ht)/2) * g.cfg.PixelScaleY
			for x := 0; x < wd; x++ {
				l := (float64(x) - float64(wd)/2) * g.cfg.PixelScaleX
				n := 1 - l*l - m*m
				var phase float64
				if n >= 0 {
					phase = -2 * math.Pi * wCenter * (math.Sqrt(n) - 1)
				}
				re, im := math.Cos(phase), math.Sin(phase)
				idx := y*wd + x
				var src complex128
				if g.cfg.IsComplex {
					src = complex(realImg[idx], imagImg[idx])
				} else {
					src = complex(realImg[idx], 0)
				}
				g.layers[i].grid[idx] = complex(real(src)*re-imag(src)*im, real(src)*im+imag(src)*re)
			}
		}
		g.fftShift2D(g.layers[i].grid)
		g.fft2D(g.layers[i].grid, false)
		g.fftShift2D(g.layers[i].grid)
	}
	return nil
}

// FinalizeImage multiplies the accumulated image by scale (unless
// skipNormalization) and divides by the kernel's image-domain taper to
// undo the gridding convolution response.
func (g *Gridder) FinalizeImage(scale float64, skipNormalization bool) error {
	wd, ht := g.cfg.Width, g.cfg.Height
	for y := 0; y < ht; y++ {
		ty := g.taperY[y]
		for x := 0; x < wd; x++ {
			tx := g.taperX[x]
			taper := tx * ty
			if taper == 0 {
				taper = 1
			}
			idx := y*wd + x
			if !skipNormalization {
				g.realImage[idx] *= scale
				if g.cfg.IsComplex {
					g.imagImage[idx] *= scale
				}
			}
			g.realImage[idx] /= taper
			if g.cfg.IsComplex {
				g.imagImage[idx] /= taper
			}
		}
	}
	return nil
}

// RealImage returns the accumulated (or finalized) real image plane.
func (g *Gridder) RealImage() []float64 { return g.realImage }

// ImaginaryImage returns the accumulated imaginary image plane, or nil for
// a non-complex run.
func (g *Gridder) ImaginaryImage() []float64 { return g.imagImage }

// ReplaceRealImageBuffer lets an external resampler hand back a
// differently-sized buffer once the gridder's internal grid no longer
// matches the caller's requested image size.
func (g *Gridder) ReplaceRealImageBuffer(buf []float64) { g.realImage = buf }

// ReplaceImaginaryImageBuffer is the imaginary-plane counterpart of
// ReplaceRealImageBuffer.
func (g *Gridder) ReplaceImaginaryImageBuffer(buf []float64) { g.imagImage = buf }

// Release returns every pooled buffer owned by this gridder to its
// allocator. Call once the gridder's output has been consumed.
func (g *Gridder) Release() {
	for i := range g.layers {
		g.alloc.PutComplex128(g.layers[i].grid)
		g.layers[i].grid = nil
	}
	if g.realImage != nil {
		g.alloc.PutFloat64(g.realImage)
		g.realImage = nil
	}
	if g.imagImage != nil {
		g.alloc.PutFloat64(g.imagImage)
		g.imagImage = nil
	}
}
