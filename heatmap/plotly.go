// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package heatmap

import (
	"encoding/base64"
	"encoding/json"
	"html/template"
	"io"
	"os"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/gonb/gonbui"
	gonbplotly "github.com/janpfeifer/gonb/gonbui/plotly"
	"github.com/pkg/errors"

	"github.com/gomlx/matching/peaks"
)

// PlotlySrc is the Plotly.js script loaded by the HTML pages written by SaveHTML.
const PlotlySrc = "https://cdn.plot.ly/plotly-2.34.0.min.js"

// NewFigure returns an interactive Plotly figure of the response map with the given index in the batch,
// with marks drawn as markers.
func NewFigure(response *tensors.Tensor, index int, marks []peaks.Peak) (*grob.Fig, error) {
	scores, err := peaks.FlatScores(response)
	if err != nil {
		return nil, err
	}
	dims := response.Shape().Dimensions
	height, width := dims[len(dims)-2], dims[len(dims)-1]
	mapSize := height * width
	if mapSize == 0 || index < 0 || (index+1)*mapSize > len(scores) {
		return nil, errors.Errorf("heatmap: index %d out of range for response shaped %s", index, response.Shape())
	}
	scores = scores[index*mapSize : (index+1)*mapSize]
	rows := make([][]float64, height)
	for y := range rows {
		rows[y] = scores[y*width : (y+1)*width]
	}

	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S("NCC response"),
			},
		},
	}
	fig.Data = append(fig.Data, &grob.Heatmap{
		Z:    ptypes.DataArray(rows),
		Zmin: ptypes.N(-1),
		Zmax: ptypes.N(1),
	})
	if len(marks) > 0 {
		xs := make([]float64, len(marks))
		ys := make([]float64, len(marks))
		for ii, mark := range marks {
			xs[ii], ys[ii] = float64(mark.Col), float64(mark.Row)
		}
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S("peaks"),
			Mode: grob.ScatterModeMarkers,
			X:    ptypes.DataArray(xs),
			Y:    ptypes.DataArray(ys),
		})
	}
	return fig, nil
}

var htmlTmpl = template.Must(template.New("heatmap").Parse(`<!DOCTYPE html>
<head>
	<meta charset="utf-8">
	<script src="{{ .CDN }}"></script>
</head>
<body>
	<div id="heatmap"></div>
	<script>
		fig = JSON.parse(atob('{{ .Figure }}'))
		Plotly.newPlot('heatmap', fig);
	</script>
</body>
</html>`))

// WriteHTML writes an HTML page with the figure to w.
func WriteHTML(w io.Writer, fig *grob.Fig) error {
	figAsJSON, err := json.Marshal(fig)
	if err != nil {
		return errors.Wrap(err, "heatmap: failed to marshal plotly figure")
	}
	data := &struct {
		CDN, Figure string
	}{
		CDN:    PlotlySrc,
		Figure: base64.StdEncoding.EncodeToString(figAsJSON),
	}
	if err = htmlTmpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "heatmap: failed to render plotly page")
	}
	return nil
}

// SaveHTML saves an interactive plot of the response map (see NewFigure) as an HTML page.
func SaveHTML(response *tensors.Tensor, index int, marks []peaks.Peak, path string) error {
	fig, err := NewFigure(response, index, marks)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "heatmap: failed to create %q", path)
	}
	if err = WriteHTML(f, fig); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "heatmap: failed to write %q", path)
}

// Display shows the interactive plot in a GoNB (Jupyter) notebook. It returns false, and does nothing, if
// not running in a notebook.
func Display(response *tensors.Tensor, index int, marks []peaks.Peak) (bool, error) {
	if !gonbui.IsNotebook {
		return false, nil
	}
	fig, err := NewFigure(response, index, marks)
	if err != nil {
		return false, err
	}
	if err = gonbplotly.DisplayFig(fig); err != nil {
		return false, errors.Wrap(err, "heatmap: failed to display plot")
	}
	return true, nil
}
