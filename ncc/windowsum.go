// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
)

// PrefixSum returns the inclusive cumulative sum of x along the given axis (negative values count from the end).
//
// It is computed with ceil(log2(dim)) shift-and-add steps (a Hillis-Steele scan), so it costs
// O(x.Size() * log(dim)) on any backend.
//
// Example:
//
//	PrefixSum([[1, 2, 3], [4, 5, 6]], -1) = [[1, 3, 6], [4, 9, 15]]
func PrefixSum(x *graph.Node, axis int) *graph.Node {
	adjustedAxis := graph.AdjustAxisToOperandRank(x, axis)
	dim := x.Shape().Dimensions[adjustedAxis]
	for step := 1; step < dim; step *= 2 {
		x = graph.Add(x, graph.ShiftWithScalar(x, adjustedAxis, graph.ShiftDirRight, step, 0))
	}
	return x
}

// WindowSum returns the sum of every windowH x windowW rectangle of the last two (spatial) axes of x.
// Leading axes are preserved.
//
// The spatial dimensions of the output are `(H - windowH - 1, W - windowW - 1)`, and the element
// at `(y, x)` holds the sum of the window starting at `(y+1, x+1)`. So x must have at least
// `windowH+2` rows and `windowW+2` columns: in MatchTemplate the padding guarantees it.
func WindowSum(x *graph.Node, windowH, windowW int) *graph.Node {
	if x.Rank() < 2 {
		exceptions.Panicf("WindowSum requires x to have rank >= 2, got x.shape=%s", x.Shape())
	}
	if windowH <= 0 || windowW <= 0 {
		exceptions.Panicf("WindowSum requires a non-empty window, got (%d, %d)", windowH, windowW)
	}
	sums := x
	for ii, window := range []int{windowH, windowW} {
		axis := x.Rank() - 2 + ii
		dim := x.Shape().Dimensions[axis]
		if dim < window+2 {
			exceptions.Panicf("WindowSum of window (%d, %d) requires spatial dimensions of at least (%d, %d), got x.shape=%s",
				windowH, windowW, windowH+2, windowW+2, x.Shape())
		}
		sums = PrefixSum(sums, axis)
		sums = graph.Sub(
			graph.SliceAxis(sums, axis, graph.AxisRange(window, dim-1)),
			graph.SliceAxis(sums, axis, graph.AxisRange(0, dim-window-1)))
	}
	return sums
}
