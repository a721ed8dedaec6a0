// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
)

// Normalize converts the raw cross-correlation into the normalized cross-correlation score:
//
//	numerator   = xcorr - winSum * tmplMean
//	localVar    = winSum2 - winSum^2 / tmplVolume
//	denominator = sqrt(max(localVar, 0) * tmplSSD)
//	response    = numerator / denominator, where denominator > eps, and 0 elsewhere.
//
// xcorr, winSum and winSum2 must be shaped `[N, H', W']`, and tmplMean and tmplSSD (the template's mean and
// the sum of its squared deviations from the mean) are shaped `[N]` or `[1]`, and they are broadcast
// over the spatial axes.
//
// Placements where the image window or the template have no variance get a score of 0: the
// division is never evaluated on them, so no NaN or Inf is produced.
// Scores are not clamped, and can be slightly outside of [-1, 1] due to round-off.
func Normalize(xcorr, winSum, winSum2, tmplMean, tmplSSD *graph.Node, tmplVolume, eps float64) *graph.Node {
	if xcorr.Rank() != 3 || !xcorr.Shape().Equal(winSum.Shape()) || !xcorr.Shape().Equal(winSum2.Shape()) {
		exceptions.Panicf("Normalize requires xcorr, winSum and winSum2 with the same shape [batch, height, width], got %s, %s and %s",
			xcorr.Shape(), winSum.Shape(), winSum2.Shape())
	}
	if tmplVolume <= 0 {
		exceptions.Panicf("Normalize requires a positive template volume, got %g", tmplVolume)
	}
	dims := xcorr.Shape().Dimensions
	perBatch := func(name string, x *graph.Node) *graph.Node {
		if size := x.Shape().Size(); size != 1 && size != dims[0] {
			exceptions.Panicf("Normalize requires %s shaped [%d] or [1], got %s", name, dims[0], x.Shape())
		}
		x = graph.Reshape(x, x.Shape().Size(), 1, 1)
		return graph.BroadcastToDims(x, dims...)
	}
	tmplMean = perBatch("tmplMean", tmplMean)
	tmplSSD = perBatch("tmplSSD", tmplSSD)

	numerator := graph.Sub(xcorr, graph.Mul(winSum, tmplMean))
	localVar := graph.Sub(winSum2, graph.DivScalar(graph.Square(winSum), tmplVolume))
	denominator := graph.Sqrt(graph.Mul(graph.MaxScalar(localVar, 0.0), tmplSSD))

	valid := graph.GreaterThan(denominator, graph.Scalar(xcorr.Graph(), denominator.DType(), eps))
	safeDenominator := graph.Where(valid, denominator, graph.OnesLike(denominator))
	return graph.Where(valid, graph.Div(numerator, safeDenominator), graph.ZerosLike(numerator))
}
