// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/plot/vg"

	"github.com/gomlx/matching/heatmap"
	"github.com/gomlx/matching/ncc"
)

// verifyTolerance above which a verified response is reported in red.
const verifyTolerance = 1e-3

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// tableWithReds is a table where some rows can be highlighted in red.
type tableWithReds struct {
	table *lgtable.Table
	count int
	reds  map[int]bool
}

func (t *tableWithReds) Row(isRed bool, row ...string) {
	if isRed {
		t.reds[t.count] = true
	}
	t.table.Row(row...)
	t.count++
}

func newTable(headers []string, alignments ...lipgloss.Position) *tableWithReds {
	t := &tableWithReds{reds: make(map[int]bool)}
	t.table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			switch {
			case t.reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
	if len(headers) > 0 {
		t.table.Headers(headers...)
	}
	return t
}

// report prints the summary and the matches found.
func report(backend backends.Backend, method ncc.Method, template *tensors.Tensor, results []*result) {
	templateDims := template.Shape().Dimensions

	fmt.Println(titleStyle.Render("Summary"))
	summary := newTable(nil, lipgloss.Right, lipgloss.Left)
	summary.Row(false, "backend", backend.Description())
	summary.Row(false, "method", method.String())
	summary.Row(false, "template", fmt.Sprintf("%s (%s)", template.Shape(), *flagTemplate))
	summary.Row(false, "# images", humanize.Comma(int64(len(results))))
	var placements int64
	var memory uint64
	for _, r := range results {
		dims := r.image.Shape().Dimensions
		placements += int64((dims[0] - templateDims[0] + 1) * (dims[1] - templateDims[1] + 1))
	}
	for _, response := range uniqueResponses(results) {
		memory += uint64(response.Memory())
	}
	summary.Row(false, "# placements", humanize.Comma(placements))
	summary.Row(false, "response memory", humanize.Bytes(memory))
	if len(results) > 0 && results[0].batched {
		summary.Row(false, "batch time", results[0].elapsed.String())
	}
	fmt.Println(summary.table.Render())

	fmt.Println(titleStyle.Render("Matches"))
	headers := []string{"Image", "Row", "Col", "Center", "Score"}
	if *flagVerify {
		headers = append(headers, "Max diff")
	}
	matches := newTable(headers, lipgloss.Left, lipgloss.Right)
	for _, r := range results {
		var verified string
		isRed := false
		if *flagVerify {
			isRed = math.IsNaN(r.maxDiff) || r.maxDiff > verifyTolerance
			verified = fmt.Sprintf("%.2g", r.maxDiff)
		}
		name := filepath.Base(r.path)
		if !r.batched {
			name = fmt.Sprintf("%s (%s)", name, r.elapsed)
		}
		if len(r.matches) == 0 {
			// Report the best placement, in red since it is below the threshold.
			row := peakRow(name+" [best]", r.best.Row, r.best.Col, r.best.Center(templateDims[0], templateDims[1]).String(), r.best.Score)
			if *flagVerify {
				row = append(row, verified)
			}
			matches.Row(true, row...)
			continue
		}
		for _, p := range r.matches {
			row := peakRow(name, p.Row, p.Col, p.Center(templateDims[0], templateDims[1]).String(), p.Score)
			if *flagVerify {
				row = append(row, verified)
			}
			matches.Row(isRed, row...)
		}
	}
	fmt.Println(matches.table.Render())
}

func peakRow(name string, row, col int, center string, score float64) []string {
	return []string{name, humanize.Comma(int64(row)), humanize.Comma(int64(col)), center, fmt.Sprintf("%.4f", score)}
}

// saveHeatmap plots the response of r with its matches.
func saveHeatmap(r *result, path string) error {
	return heatmap.Save(r.response, r.index, r.matches, path, 8*vg.Inch, 6*vg.Inch)
}
