// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package naive implements normalized cross-correlation straight from its definition, in O(H*W*h*w).
//
// It is the reference used to test and verify the graph implementation in package ncc.
package naive

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Number is any integer or float type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Epsilon under which a denominator is taken as zero, and the score is 0.
const Epsilon = 1e-12

// MatchFlat returns the normalized cross-correlation of a row-major image of dimensions (height, width)
// and a template of dimensions (templateH, templateW), shaped (height-templateH+1, width-templateW+1),
// also row-major.
func MatchFlat[T Number](image []T, height, width int, template []T, templateH, templateW int) ([]float64, error) {
	if len(image) != height*width || len(template) != templateH*templateW {
		return nil, errors.Errorf("naive.MatchFlat: image has %d values, expected %dx%d; template has %d values, expected %dx%d",
			len(image), height, width, len(template), templateH, templateW)
	}
	if templateH <= 0 || templateW <= 0 || templateH > height || templateW > width {
		return nil, errors.Errorf("naive.MatchFlat: template (%d, %d) doesn't fit image (%d, %d)",
			templateH, templateW, height, width)
	}

	volume := float64(templateH * templateW)
	var tmplMean float64
	for _, v := range template {
		tmplMean += float64(v)
	}
	tmplMean /= volume
	var tmplSSD float64
	for _, v := range template {
		d := float64(v) - tmplMean
		tmplSSD += d * d
	}

	outH, outW := height-templateH+1, width-templateW+1
	output := make([]float64, outH*outW)
	for y := range outH {
		for x := range outW {
			var windowMean float64
			for i := range templateH {
				for j := range templateW {
					windowMean += float64(image[(y+i)*width+x+j])
				}
			}
			windowMean /= volume
			var numerator, windowSSD float64
			for i := range templateH {
				for j := range templateW {
					d := float64(image[(y+i)*width+x+j]) - windowMean
					numerator += d * (float64(template[i*templateW+j]) - tmplMean)
					windowSSD += d * d
				}
			}
			denominator := math.Sqrt(windowSSD * tmplSSD)
			if denominator > Epsilon {
				output[y*outW+x] = numerator / denominator
			}
		}
	}
	return output, nil
}

// Match is like MatchFlat, but for images given as [][]T. All rows must have the same length.
func Match[T Number](image, template [][]T) ([][]float64, error) {
	flatImage, height, width, err := flatten(image)
	if err != nil {
		return nil, errors.WithMessage(err, "naive.Match: image")
	}
	flatTemplate, templateH, templateW, err := flatten(template)
	if err != nil {
		return nil, errors.WithMessage(err, "naive.Match: template")
	}
	flat, err := MatchFlat(flatImage, height, width, flatTemplate, templateH, templateW)
	if err != nil {
		return nil, err
	}
	outW := width - templateW + 1
	output := make([][]float64, height-templateH+1)
	for y := range output {
		output[y] = flat[y*outW : (y+1)*outW]
	}
	return output, nil
}

func flatten[T Number](rows [][]T) (flat []T, height, width int, err error) {
	height = len(rows)
	if height == 0 {
		return nil, 0, 0, errors.New("empty")
	}
	width = len(rows[0])
	flat = make([]T, 0, height*width)
	for y, row := range rows {
		if len(row) != width {
			return nil, 0, 0, errors.Errorf("row %d has %d values, expected %d", y, len(row), width)
		}
		flat = append(flat, row...)
	}
	return flat, height, width, nil
}
