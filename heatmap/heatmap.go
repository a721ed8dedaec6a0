// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package heatmap plots NCC response maps with gonum/plot.
package heatmap

import (
	"image/color"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gomlx/matching/peaks"
)

// grid implements plotter.GridXYZ over one row-major response map.
type grid struct {
	scores        []float64
	height, width int
}

func (g grid) Dims() (c, r int)   { return g.width, g.height }
func (g grid) Z(c, r int) float64 { return g.scores[r*g.width+c] }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r) }

// New returns a plot of the response map with the given index in the batch (0 for a 2D response), with
// scores from -1 (blue) to 1 (red), and row 0 at the top. marks (typically the peaks found) are drawn
// as crosses.
func New(response *tensors.Tensor, index int, marks []peaks.Peak) (*plot.Plot, error) {
	scores, err := peaks.FlatScores(response)
	if err != nil {
		return nil, err
	}
	dims := response.Shape().Dimensions
	g := grid{height: dims[len(dims)-2], width: dims[len(dims)-1]}
	mapSize := g.height * g.width
	if mapSize == 0 || index < 0 || (index+1)*mapSize > len(scores) {
		return nil, errors.Errorf("heatmap: index %d out of range for response shaped %s", index, response.Shape())
	}
	g.scores = scores[index*mapSize : (index+1)*mapSize]

	colors := moreland.SmoothBlueRed()
	colors.SetMin(-1)
	colors.SetMax(1)
	heatMap := plotter.NewHeatMap(g, colors.Palette(255))
	heatMap.Min, heatMap.Max = -1, 1

	p := plot.New()
	p.Title.Text = "NCC response"
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row"
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	p.Add(heatMap)

	if len(marks) > 0 {
		points := make(plotter.XYs, len(marks))
		for ii, mark := range marks {
			points[ii].X, points[ii].Y = float64(mark.Col), float64(mark.Row)
		}
		scatter, err := plotter.NewScatter(points)
		if err != nil {
			return nil, errors.Wrap(err, "heatmap: failed to plot marks")
		}
		scatter.GlyphStyle.Shape = draw.CrossGlyph{}
		scatter.GlyphStyle.Color = color.Black
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("peaks", scatter)
	}
	return p, nil
}

// Save plots the response map (see New) to path, in the format given by its extension
// (".png", ".svg", ".pdf", ...).
func Save(response *tensors.Tensor, index int, marks []peaks.Peak, path string, width, height vg.Length) error {
	p, err := New(response, index, marks)
	if err != nil {
		return err
	}
	if err = p.Save(width, height, path); err != nil {
		return errors.Wrapf(err, "heatmap: failed to save %q", path)
	}
	return nil
}
