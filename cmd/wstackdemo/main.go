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

// wstackdemo wires the w-stacking core to a tiny in-memory measurement set
// and runs one Invert call, optionally exporting the dirty image as a
// 16-bit TIFF for visual inspection. It does not parse real science
// parameters from the command line — that stays a caller concern the core
// itself never owns.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"golang.org/x/image/tiff"

	"github.com/radioimager/wstack/internal/band"
	"github.com/radioimager/wstack/internal/msio"
	"github.com/radioimager/wstack/internal/orchestrate"
	"github.com/radioimager/wstack/internal/progress"
)

var width = flag.Int64("width", 64, "image width in pixels")
var height = flag.Int64("height", 64, "image height in pixels")
var pixelScale = flag.Float64("pixelScale", 0.01, "pixel scale in radians/pixel")
var wGridSize = flag.Int64("wGridSize", 0, "fixed w-layer count, 0=auto-suggest")
var verbose = flag.Bool("verbose", true, "log progress to stderr")
var tiffOut = flag.String("tiff", "", "save the dirty image as 16-bit TIFF to `file`")
var progressAddr = flag.String("progressAddr", "", "serve pass progress as JSON on `addr` (e.g. :8080), empty disables")

var totalMiBs = memory.TotalMemory() / 1024 / 1024

func main() {
	flag.Parse()

	fmt.Fprintf(os.Stderr, "wstackdemo: %s, %d logical cores, %d MiB RAM\n", cpuid.CPU.BrandName, cpuid.CPU.LogicalCores, totalMiBs)

	w, h := int(*width), int(*height)
	bands := band.Multi{Bands: []band.Data{{Frequencies: []float64{band.SpeedOfLight}}}} // 1 m wavelength

	rows := crossVisibilities(10, 0)
	handle := msio.SimpleHandle{}
	provider := msio.NewMemProvider(rows, handle, 0)

	cfg := orchestrate.Config{
		Width: w, Height: h,
		PixelScaleX: *pixelScale, PixelScaleY: *pixelScale,
		NormalizeForWeighting: true,
		WGridSize:             int(*wGridSize),
		Verbose:               *verbose,
	}
	if *verbose {
		cfg.Log = os.Stderr
	}
	if *progressAddr != "" {
		srv := progress.NewServer()
		go func() {
			if err := srv.Run(*progressAddr); err != nil {
				fmt.Fprintf(os.Stderr, "wstackdemo: progress server: %v\n", err)
			}
		}()
		cfg.Progress = srv
	}

	orc := orchestrate.NewInversionOrchestrator(cfg)
	result, err := orc.Invert([]orchestrate.MSSpec{{Provider: provider, Bands: bands}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "wstackdemo: invert failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "wstackdemo: matching rows %d, skipped %d, total weight %.3g, %d layers in %d passes\n",
		result.MatchingRows, result.SkippedRows, result.TotalWeight, result.Layers.LayerCount, result.Layers.PassCount)

	if *tiffOut != "" {
		if err := writeTIFF(*tiffOut, result.RealImage, w, h); err != nil {
			fmt.Fprintf(os.Stderr, "wstackdemo: writing tiff failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// crossVisibilities returns 4 unit-weight visibilities at (+-amp,0,w) and
// (0,+-amp,w), the E2E-1/E2E-2 seed scenario from the core's test suite.
func crossVisibilities(amp, w float64) []msio.Row {
	coords := [][2]float64{{amp, 0}, {0, amp}, {-amp, 0}, {0, -amp}}
	rows := make([]msio.Row, len(coords))
	for i, c := range coords {
		rows[i] = msio.Row{
			U: c[0], V: c[1], W: w,
			DataDescId: 0,
			Data:       []complex64{complex(1, 0)},
			Weights:    []float32{1},
			RowId:      int64(i),
		}
	}
	return rows
}

func writeTIFF(path string, realImg []float64, w, h int) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range realImg {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			norm := (realImg[y*w+x] - lo) / span
			img.SetGray16(x, y, color.Gray16{Y: uint16(norm * 65535)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tiff.Encode(f, img, nil)
}
