// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package peaks finds matches in the response maps returned by ncc.Match: the best placement of each
// map, or all placements above a threshold with non-maximum suppression.
package peaks

import (
	"cmp"
	"fmt"
	"image"
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// DefaultMaxResults is used by FindAll when Options.MaxResults is 0.
const DefaultMaxResults = 10

// Peak is a placement of the template in the image: the template's top-left corner is at (Row, Col)
// of the image with index Batch (empty for a 2D response map).
type Peak struct {
	Batch    []int
	Row, Col int
	Score    float64
}

// String implements fmt.Stringer.
func (p Peak) String() string {
	if len(p.Batch) == 0 {
		return fmt.Sprintf("(row=%d, col=%d): %.4f", p.Row, p.Col, p.Score)
	}
	return fmt.Sprintf("%v(row=%d, col=%d): %.4f", p.Batch, p.Row, p.Col, p.Score)
}

// Rect returns the region of the image covered by the template, for a template of dimensions (templateH, templateW).
func (p Peak) Rect(templateH, templateW int) image.Rectangle {
	return image.Rect(p.Col, p.Row, p.Col+templateW, p.Row+templateH)
}

// Center returns the image coordinates of the center of the template.
func (p Peak) Center(templateH, templateW int) image.Point {
	return image.Pt(p.Col+templateW/2, p.Row+templateH/2)
}

// Options for FindAll.
type Options struct {
	// Threshold is the minimum score (inclusive) of a peak.
	Threshold float64

	// MaxResults is the maximum number of peaks returned per response map. If 0, DefaultMaxResults is used.
	// If negative, there is no limit.
	MaxResults int

	// SuppressH and SuppressW define the neighbourhood suppressed around each peak found: no other
	// peak at a row distance < SuppressH and a column distance < SuppressW is returned.
	// Using the template dimensions guarantees the matched regions don't overlap.
	// Values <= 1 only suppress the peak itself.
	SuppressH, SuppressW int
}

// Best returns the placement with the highest score of each response map of the batch, in batch order.
// Ties are resolved by the first one in row-major order.
func Best(response *tensors.Tensor) ([]Peak, error) {
	scores, err := FlatScores(response)
	if err != nil {
		return nil, err
	}
	var result []Peak
	forEachMap(response, scores, func(batch []int, values []float64, width int) {
		best := -1
		for ii, v := range values {
			if math.IsNaN(v) {
				continue
			}
			if best < 0 || v > values[best] {
				best = ii
			}
		}
		if best >= 0 {
			result = append(result, Peak{Batch: batch, Row: best / width, Col: best % width, Score: values[best]})
		}
	})
	return result, nil
}

// FindAll returns the placements with a score >= opts.Threshold of each response map of the batch,
// excluding those within the suppression neighbourhood of a higher scoring one.
//
// Peaks are returned in batch order, and for each response map sorted by decreasing score.
func FindAll(response *tensors.Tensor, opts Options) ([]Peak, error) {
	scores, err := FlatScores(response)
	if err != nil {
		return nil, err
	}
	var result []Peak
	forEachMap(response, scores, func(batch []int, values []float64, width int) {
		for _, p := range FindAllFlat(values, width, opts) {
			p.Batch = batch
			result = append(result, p)
		}
	})
	return result, nil
}

// FindAllFlat is like FindAll for one response map given as a row-major slice of the given width.
func FindAllFlat[T constraints.Float](scores []T, width int, opts Options) []Peak {
	if width <= 0 || len(scores)%width != 0 {
		return nil
	}
	maxResults := opts.MaxResults
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	suppressH, suppressW := max(opts.SuppressH, 1), max(opts.SuppressW, 1)

	candidates := make([]int, 0, len(scores))
	for ii, v := range scores {
		if float64(v) >= opts.Threshold { // Also excludes NaN.
			candidates = append(candidates, ii)
		}
	}
	slices.SortStableFunc(candidates, func(a, b int) int { return cmp.Compare(scores[b], scores[a]) })

	var found []Peak
	for _, idx := range candidates {
		if maxResults > 0 && len(found) >= maxResults {
			break
		}
		row, col := idx/width, idx%width
		suppressed := slices.ContainsFunc(found, func(p Peak) bool {
			return abs(p.Row-row) < suppressH && abs(p.Col-col) < suppressW
		})
		if !suppressed {
			found = append(found, Peak{Row: row, Col: col, Score: float64(scores[idx])})
		}
	}
	return found
}

func abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// FlatScores returns the values of a float response map (any float dtype) as a flat row-major slice.
func FlatScores(response *tensors.Tensor) ([]float64, error) {
	if response == nil {
		return nil, errors.New("peaks: nil response")
	}
	if response.Rank() < 2 {
		return nil, errors.Errorf("peaks: response must have rank >= 2, got shape %s", response.Shape())
	}
	switch response.DType() {
	case dtypes.Float64:
		return tensors.CopyFlatData[float64](response)
	case dtypes.Float32:
		return convertFlat(response, func(v float32) float64 { return float64(v) })
	case dtypes.BFloat16:
		return convertFlat(response, func(v bfloat16.BFloat16) float64 { return float64(v.Float32()) })
	case dtypes.Float16:
		return convertFlat(response, func(v float16.Float16) float64 { return float64(v.Float32()) })
	}
	return nil, errors.Errorf("peaks: response must be a float tensor, got shape %s", response.Shape())
}

func convertFlat[T float32 | bfloat16.BFloat16 | float16.Float16](response *tensors.Tensor, fn func(T) float64) ([]float64, error) {
	values, err := tensors.CopyFlatData[T](response)
	if err != nil {
		return nil, errors.WithMessage(err, "peaks: reading response")
	}
	out := make([]float64, len(values))
	for ii, v := range values {
		out[ii] = fn(v)
	}
	return out, nil
}

// forEachMap calls fn for each 2D response map of the batch, with its batch indices.
func forEachMap(response *tensors.Tensor, scores []float64, fn func(batch []int, values []float64, width int)) {
	dims := response.Shape().Dimensions
	height, width := dims[len(dims)-2], dims[len(dims)-1]
	mapSize := height * width
	if mapSize == 0 {
		return
	}
	batchDims := dims[:len(dims)-2]
	for start := 0; start < len(scores); start += mapSize {
		fn(unravel(start/mapSize, batchDims), scores[start:start+mapSize], width)
	}
}

// unravel converts a flat index into indices over dims (row-major).
func unravel(flat int, dims []int) []int {
	if len(dims) == 0 {
		return nil
	}
	indices := make([]int, len(dims))
	for axis := len(dims) - 1; axis >= 0; axis-- {
		indices[axis] = flat % dims[axis]
		flat /= dims[axis]
	}
	return indices
}
