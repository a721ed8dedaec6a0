// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

var (
	// ErrShape is matched (with errors.Is) by every *ShapeError.
	ErrShape = errors.New("ncc: invalid shape")

	// ErrDType is matched (with errors.Is) by every *DTypeError.
	ErrDType = errors.New("ncc: unsupported dtype")
)

// ShapeError is returned when the image and template shapes can't be matched: a rank lower than 2,
// an empty spatial axis, a template larger than the image on a spatial axis, or leading (batch) axes
// that don't broadcast.
type ShapeError struct {
	Op                        string
	ImageShape, TemplateShape shapes.Shape
	Reason                    string
}

// Error implements error.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: image.shape=%s, template.shape=%s: %s", e.Op, e.ImageShape, e.TemplateShape, e.Reason)
}

// Is makes errors.Is(err, ErrShape) work.
func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// DTypeError is returned when an input has a dtype that can't be converted to a floating point
// working dtype (bool, complex or invalid dtypes).
type DTypeError struct {
	Op    string
	Input string
	DType dtypes.DType
}

// Error implements error.
func (e *DTypeError) Error() string {
	return fmt.Sprintf("%s: %s has dtype %s, only integer and float dtypes are supported", e.Op, e.Input, e.DType)
}

// Is makes errors.Is(err, ErrDType) work.
func (e *DTypeError) Is(target error) bool { return target == ErrDType }
