// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/matching/ncc"
	"github.com/gomlx/matching/peaks"
)

func TestParseROI(t *testing.T) {
	rect, err := parseROI("1, 2,30,40")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(1, 2, 30, 40), rect)
	_, err = parseROI("1,2,3")
	require.Error(t, err)
	_, err = parseROI("1,2,3,x")
	require.Error(t, err)
}

func TestIndexedPath(t *testing.T) {
	assert.Equal(t, "out.png", indexedPath("out.png", 0, 1))
	assert.Equal(t, "dir/out_007.png", indexedPath("dir/out.png", 7, 12))
}

func TestIsAllEqual(t *testing.T) {
	equal := func(a, b int) bool { return a == b }
	assert.True(t, isAllEqual([]int{}, equal))
	assert.True(t, isAllEqual([]int{3, 3, 3}, equal))
	assert.False(t, isAllEqual([]int{3, 3, 4}, equal))
}

// checkerboard returns a size x size image of cells x cells squares, with a white dot at (dotX, dotY).
func checkerboard(size, cells, dotX, dotY int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	cellSize := size / cells
	for y := range size {
		for x := range size {
			if (x/cellSize+y/cellSize)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 200})
			} else {
				img.SetGray(x, y, color.Gray{Y: 40})
			}
		}
	}
	img.SetGray(dotX, dotY, color.Gray{Y: 255})
	img.SetGray(dotX+1, dotY, color.Gray{Y: 0})
	return img
}

func TestMatchAll(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	require.NoError(t, imaging.Save(checkerboard(32, 4, 10, 13), paths[0]))
	require.NoError(t, imaging.Save(checkerboard(32, 4, 21, 5), paths[1]))

	*flagScale = 1
	*flagVerify = true
	*flagThreshold = 0.99
	template := mustLoad(t, func() (*tensors.Tensor, error) { return loadGray(paths[0], "8,11,14,16", dtypes.Float64) })
	images := make([]*tensors.Tensor, len(paths))
	for ii, path := range paths {
		images[ii] = mustLoad(t, func() (*tensors.Tensor, error) { return loadGray(path, "", dtypes.Float64) })
	}

	backend, err := backends.NewWithConfig(ncc.HostBackendConfig)
	require.NoError(t, err)
	defer backend.Finalize()
	matcher := ncc.NewMatcher(backend)

	check := func(t *testing.T, results []*result) {
		require.Len(t, results, 2)
		require.NotEmpty(t, results[0].matches)
		assert.Equal(t, [2]int{11, 8}, [2]int{results[0].best.Row, results[0].best.Col})
		assert.InDelta(t, 1.0, results[0].best.Score, 1e-6)
		for _, r := range results {
			require.False(t, math.IsNaN(r.maxDiff))
			assert.Less(t, r.maxDiff, 1e-4)
		}
	}

	t.Run("Batched", func(t *testing.T) {
		results, err := matchAll(matcher, paths, images, template)
		require.NoError(t, err)
		assert.True(t, results[0].batched)
		check(t, results)
		assert.Len(t, uniqueResponses(results), 1)
	})

	t.Run("OneByOne", func(t *testing.T) {
		smaller := mustLoad(t, func() (*tensors.Tensor, error) { return loadGray(paths[1], "0,0,30,30", dtypes.Float64) })
		results, err := matchAll(matcher, paths, []*tensors.Tensor{images[0], smaller}, template)
		require.NoError(t, err)
		assert.False(t, results[0].batched)
		check(t, results)
		assert.Len(t, uniqueResponses(results), 2)
	})
}

func mustLoad[T any](t *testing.T, fn func() (T, error)) T {
	v, err := fn()
	require.NoError(t, err)
	return v
}

func TestWriteCSV(t *testing.T) {
	results := []*result{
		{path: "a.png", matches: []peaks.Peak{{Row: 1, Col: 2, Score: 0.95}, {Row: 5, Col: 6, Score: 0.9}}, maxDiff: math.NaN()},
		{path: "b.png", best: peaks.Peak{Row: 3, Col: 4, Score: 0.5}, maxDiff: 1e-7},
	}
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, results))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "image,row,col,score,match,max_diff", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a.png,1,2,0.95"))
	assert.True(t, strings.HasPrefix(lines[3], "b.png,3,4,0.5"))
	assert.Contains(t, lines[3], "false")
}
