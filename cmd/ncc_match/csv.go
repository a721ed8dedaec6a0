// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// matchesDataFrame returns one row per match found (or the best placement, for images without
// matches), with its image, position and score.
func matchesDataFrame(results []*result) dataframe.DataFrame {
	var (
		paths    []string
		rows     []int
		cols     []int
		scores   []float64
		isMatch  []bool
		maxDiffs []float64
	)
	for _, r := range results {
		found := r.matches
		matched := true
		if len(found) == 0 {
			found = append(found, r.best)
			matched = false
		}
		for _, p := range found {
			paths = append(paths, r.path)
			rows = append(rows, p.Row)
			cols = append(cols, p.Col)
			scores = append(scores, p.Score)
			isMatch = append(isMatch, matched)
			maxDiffs = append(maxDiffs, r.maxDiff)
		}
	}
	return dataframe.New(
		series.New(paths, series.String, "image"),
		series.New(rows, series.Int, "row"),
		series.New(cols, series.Int, "col"),
		series.New(scores, series.Float, "score"),
		series.New(isMatch, series.Bool, "match"),
		series.New(maxDiffs, series.Float, "max_diff"),
	)
}

// writeCSV writes the matches of results as CSV to w.
func writeCSV(w io.Writer, results []*result) error {
	df := matchesDataFrame(results)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build matches table")
	}
	return errors.Wrap(df.WriteCSV(w), "failed to write matches as CSV")
}

// saveCSV writes the matches of results as CSV to path.
func saveCSV(path string, results []*result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err = writeCSV(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to write %q", path)
}
