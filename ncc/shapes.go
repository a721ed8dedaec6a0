// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"fmt"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// layout describes how an (image, template) pair is flattened for the computation: the image to
// `[numBatch, imageH, imageW]` and the template to `[numBatch, templateH, templateW]`, or to
// `[1, templateH, templateW]` if the same template is used for every image.
type layout struct {
	workingDType, outputDType dtypes.DType

	// batchDims is the broadcast of the leading axes of the image and the template.
	batchDims []int
	numBatch  int

	imageH, imageW       int
	templateH, templateW int

	// sharedTemplate is true if the template has no leading axes (or they are all 1).
	sharedTemplate bool
}

// outputDims returns the dimensions of the response map.
func (l layout) outputDims() []int {
	return append(slices.Clone(l.batchDims), l.imageH-l.templateH+1, l.imageW-l.templateW+1)
}

// newLayout validates the image and template shapes and returns their layout.
// It returns a *DTypeError or a *ShapeError if the inputs can't be matched.
func newLayout(op string, image, template shapes.Shape) (l layout, err error) {
	l.workingDType, l.outputDType, err = WorkingDType(image.DType)
	if err != nil {
		return l, &DTypeError{Op: op, Input: "image", DType: image.DType}
	}
	if _, _, err = WorkingDType(template.DType); err != nil {
		return l, &DTypeError{Op: op, Input: "template", DType: template.DType}
	}

	shapeErr := func(format string, args ...any) error {
		return &ShapeError{Op: op, ImageShape: image, TemplateShape: template, Reason: fmt.Sprintf(format, args...)}
	}
	if image.Rank() < 2 {
		return l, shapeErr("image must have rank >= 2 (the last two axes are the spatial axes), got rank %d", image.Rank())
	}
	if template.Rank() < 2 {
		return l, shapeErr("template must have rank >= 2 (the last two axes are the spatial axes), got rank %d", template.Rank())
	}
	imageDims, templateDims := image.Dimensions, template.Dimensions
	l.imageH, l.imageW = imageDims[len(imageDims)-2], imageDims[len(imageDims)-1]
	l.templateH, l.templateW = templateDims[len(templateDims)-2], templateDims[len(templateDims)-1]
	if l.templateH <= 0 || l.templateW <= 0 || l.imageH <= 0 || l.imageW <= 0 {
		return l, shapeErr("spatial axes must not be empty")
	}
	if l.templateH > l.imageH || l.templateW > l.imageW {
		return l, shapeErr("template spatial dimensions (%d, %d) are larger than the image's (%d, %d)",
			l.templateH, l.templateW, l.imageH, l.imageW)
	}

	imageBatch, templateBatch := imageDims[:len(imageDims)-2], templateDims[:len(templateDims)-2]
	l.batchDims, err = broadcastDims(imageBatch, templateBatch)
	if err != nil {
		return l, shapeErr("%v", err)
	}
	l.numBatch = 1
	for _, dim := range l.batchDims {
		l.numBatch *= dim
	}
	if l.numBatch == 0 {
		return l, shapeErr("batch axes must not be empty")
	}
	l.sharedTemplate = true
	for _, dim := range templateBatch {
		if dim != 1 {
			l.sharedTemplate = false
		}
	}
	return l, nil
}

// broadcastDims returns the broadcast of two sets of dimensions, aligned to the right: each pair
// of dimensions must be equal, or one of them must be 1.
func broadcastDims(a, b []int) ([]int, error) {
	rank := max(len(a), len(b))
	dims := make([]int, rank)
	for ii := range rank {
		dimA, dimB := 1, 1
		if idx := ii - (rank - len(a)); idx >= 0 {
			dimA = a[idx]
		}
		if idx := ii - (rank - len(b)); idx >= 0 {
			dimB = b[idx]
		}
		switch {
		case dimA == dimB, dimB == 1:
			dims[ii] = dimA
		case dimA == 1:
			dims[ii] = dimB
		default:
			return nil, errors.Errorf("leading axes %v and %v don't broadcast (axis %d: %d vs %d)", a, b, ii, dimA, dimB)
		}
	}
	return dims, nil
}

// OutputShape validates the shapes of an image and a template and returns the shape of the response map
// returned by matching them: `[broadcast(image_batch, template_batch)..., H-h+1, W-w+1]`.
//
// It returns a *ShapeError or a *DTypeError if the inputs can't be matched.
func OutputShape(image, template shapes.Shape) (shapes.Shape, error) {
	l, err := newLayout("OutputShape", image, template)
	if err != nil {
		return shapes.Shape{}, err
	}
	return shapes.Make(l.outputDType, l.outputDims()...), nil
}
