// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package peaks

import (
	"image"
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBest(t *testing.T) {
	response := tensors.FromValue([][][]float32{
		{{0.1, 0.9, 0.2}, {0.3, 0.4, 0.9}},
		{{-1, -0.5, 0}, {0.7, 0.2, 0.1}},
	})
	got, err := Best(response)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int{0}, got[0].Batch)
	assert.Equal(t, [2]int{0, 1}, [2]int{got[0].Row, got[0].Col}) // First of the ties.
	assert.InDelta(t, 0.9, got[0].Score, 1e-6)
	assert.Equal(t, []int{1}, got[1].Batch)
	assert.Equal(t, [2]int{1, 0}, [2]int{got[1].Row, got[1].Col})

	got, err = Best(tensors.FromValue([][]float64{{math.NaN(), 0.5}}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Batch)
	assert.Equal(t, 1, got[0].Col)

	_, err = Best(tensors.FromValue([]float32{1, 2}))
	require.Error(t, err)
	_, err = Best(tensors.FromValue([][]int32{{1, 2}}))
	require.Error(t, err)
}

func TestFindAll(t *testing.T) {
	scores := [][]float64{
		{0.95, 0.90, 0.10, 0.10, 0.10},
		{0.10, 0.10, 0.10, 0.10, 0.80},
		{0.10, 0.10, 0.10, 0.85, 0.10},
		{0.70, 0.10, 0.10, 0.10, 0.10},
	}
	response := tensors.FromValue(scores)

	t.Run("NoSuppression", func(t *testing.T) {
		got, err := FindAll(response, Options{Threshold: 0.8})
		require.NoError(t, err)
		require.Len(t, got, 4)
		for ii := 1; ii < len(got); ii++ {
			assert.GreaterOrEqual(t, got[ii-1].Score, got[ii].Score)
		}
		assert.Equal(t, 0.8, got[3].Score) // Threshold is inclusive.
	})

	t.Run("Suppression", func(t *testing.T) {
		got, err := FindAll(response, Options{Threshold: 0.5, SuppressH: 2, SuppressW: 2})
		require.NoError(t, err)
		var positions [][2]int
		for _, p := range got {
			positions = append(positions, [2]int{p.Row, p.Col})
		}
		// (0, 1) is suppressed by (0, 0) and (1, 4) by (2, 3).
		assert.Equal(t, [][2]int{{0, 0}, {2, 3}, {3, 0}}, positions)

		// Regions of a 2x2 template don't overlap.
		for ii := range got {
			for jj := ii + 1; jj < len(got); jj++ {
				assert.False(t, got[ii].Rect(2, 2).Overlaps(got[jj].Rect(2, 2)))
			}
		}
	})

	t.Run("MaxResults", func(t *testing.T) {
		got, err := FindAll(response, Options{Threshold: 0, MaxResults: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		got, err = FindAll(response, Options{Threshold: 0})
		require.NoError(t, err)
		require.Len(t, got, DefaultMaxResults)
		got, err = FindAll(response, Options{Threshold: 0, MaxResults: -1})
		require.NoError(t, err)
		require.Len(t, got, 20)
	})

	t.Run("Batch", func(t *testing.T) {
		batch := tensors.FromValue([][][][]float64{{scores, scores}, {scores, scores}})
		got, err := FindAll(batch, Options{Threshold: 0.9})
		require.NoError(t, err)
		require.Len(t, got, 8)
		assert.Equal(t, []int{0, 0}, got[0].Batch)
		assert.Equal(t, []int{0, 1}, got[2].Batch)
		assert.Equal(t, []int{1, 1}, got[7].Batch)
	})
}

func TestFindAllBFloat16(t *testing.T) {
	values := []bfloat16.BFloat16{bfloat16.FromFloat32(0.25), bfloat16.FromFloat32(1), bfloat16.FromFloat32(-1), bfloat16.FromFloat32(0.5)}
	got, err := FindAll(tensors.FromFlatDataAndDimensions(values, 2, 2), Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, 0.5, got[1].Score)
}

func TestFindAllFlat(t *testing.T) {
	got := FindAllFlat([]float32{0.1, 0.9, float32(math.NaN()), 0.95}, 2, Options{Threshold: 0.5})
	require.Len(t, got, 2)
	assert.Equal(t, [2]int{1, 1}, [2]int{got[0].Row, got[0].Col})
	assert.Nil(t, FindAllFlat([]float64{1, 2, 3}, 2, Options{}))
}

func TestGeometry(t *testing.T) {
	p := Peak{Row: 10, Col: 20, Score: 1}
	assert.Equal(t, image.Rect(20, 10, 25, 13), p.Rect(3, 5))
	assert.Equal(t, image.Pt(22, 11), p.Center(3, 5))
	assert.Equal(t, "(row=10, col=20): 1.0000", p.String())
	p.Batch = []int{2}
	assert.Equal(t, "[2](row=10, col=20): 1.0000", p.String())
}
