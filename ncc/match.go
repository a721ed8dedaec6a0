// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"k8s.io/klog/v2"
)

// MatchTemplateConfig holds the configuration of MatchTemplate. Create it with MatchTemplate, optionally
// configure it, and call Done to get the response map.
type MatchTemplateConfig struct {
	image, template *graph.Node
	method          Method
}

// MatchTemplate slides template over image and scores every full-overlap placement with the normalized
// cross-correlation, a value in [-1, 1] where 1 is a perfect match up to brightness and contrast.
//
// The last two axes of image and template are the spatial (height, width) axes. Leading axes are batch
// axes, broadcast against each other:
//
//   - image `[H, W]`, template `[h, w]` returns `[H-h+1, W-w+1]`.
//   - image `[N, H, W]`, template `[h, w]` matches the same template on every image.
//   - image `[N, H, W]`, template `[N, h, w]` matches each image with its own template.
//
// Integer inputs are converted to a float dtype, see WorkingDType. Half-precision inputs are computed in
// Float32 and the result is converted back.
//
// It returns a configuration object, call Done to build the computation. If the shapes or dtypes can't be
// matched, Done panics with a *ShapeError or a *DTypeError.
func MatchTemplate(image, template *graph.Node) *MatchTemplateConfig {
	return &MatchTemplateConfig{image: image, template: template, method: MethodAuto}
}

// Method configures how the raw cross-correlation is computed. Default is MethodAuto.
func (c *MatchTemplateConfig) Method(method Method) *MatchTemplateConfig {
	c.method = method
	return c
}

// Done builds the computation and returns the response map, shaped
// `[broadcast(imageBatch, templateBatch)..., H-h+1, W-w+1]`.
func (c *MatchTemplateConfig) Done() *graph.Node {
	l, err := newLayout("MatchTemplate", c.image.Shape(), c.template.Shape())
	if err != nil {
		panic(err)
	}
	h, w := l.templateH, l.templateW
	klog.V(1).Infof("MatchTemplate(image.shape=%s, template.shape=%s): working dtype %s, %d matches, shared template=%v",
		c.image.Shape(), c.template.Shape(), l.workingDType, l.numBatch, l.sharedTemplate)

	image := flattenBatch(graph.ConvertDType(c.image, l.workingDType), l.batchDims, l.numBatch)
	template := graph.ConvertDType(c.template, l.workingDType)
	if l.sharedTemplate {
		template = graph.Reshape(template, 1, h, w)
	} else {
		template = flattenBatch(template, l.batchDims, l.numBatch)
	}

	// Zero-padding by the template size on every side makes every partial overlap addressable, and
	// the window sums aligned with the cross-correlation.
	padded := zeroPad(zeroPad(image, 1, h, h), 2, w, w)
	winSum := WindowSum(padded, h, w)
	winSum2 := WindowSum(graph.Square(padded), h, w)

	// Template statistics, one per template.
	numTemplates := template.Shape().Dimensions[0]
	tmplVolume := float64(h * w)
	tmplMean := graph.ReduceMean(template, 1, 2)
	centered := graph.Sub(template, graph.BroadcastToDims(graph.Reshape(tmplMean, numTemplates, 1, 1), numTemplates, h, w))
	tmplSSD := graph.ReduceSum(graph.Square(centered), 1, 2)

	xcorr := TrimBorder(CrossCorrelate(padded, template, c.method))
	response := Normalize(xcorr, winSum, winSum2, tmplMean, tmplSSD, tmplVolume, MachineEpsilon(l.workingDType))

	// Keep only full-overlap placements.
	response = graph.Slice(response,
		graph.AxisRange(),
		graph.AxisRange(h-1, l.imageH),
		graph.AxisRange(w-1, l.imageW))
	response = graph.Reshape(response, l.outputDims()...)
	return graph.ConvertDType(response, l.outputDType)
}

// flattenBatch broadcasts the leading axes of x to batchDims and collapses them into one axis of
// dimension numBatch.
func flattenBatch(x *graph.Node, batchDims []int, numBatch int) *graph.Node {
	dims := x.Shape().Dimensions
	height, width := dims[len(dims)-2], dims[len(dims)-1]
	targetDims := append(slices.Clone(batchDims), height, width)
	x = graph.ExpandLeftToRank(x, len(targetDims))
	if !slices.Equal(x.Shape().Dimensions, targetDims) {
		x = graph.BroadcastToDims(x, targetDims...)
	}
	return graph.Reshape(x, numBatch, height, width)
}

// zeroPad adds start zeros before and end zeros after x along axis.
//
// It uses Concatenate: the pure Go backend has no Pad operation.
func zeroPad(x *graph.Node, axis, start, end int) *graph.Node {
	parts := make([]*graph.Node, 0, 3)
	zeros := func(n int) *graph.Node {
		dims := slices.Clone(x.Shape().Dimensions)
		dims[axis] = n
		return graph.Zeros(x.Graph(), shapes.Make(x.DType(), dims...))
	}
	if start > 0 {
		parts = append(parts, zeros(start))
	}
	parts = append(parts, x)
	if end > 0 {
		parts = append(parts, zeros(end))
	}
	if len(parts) == 1 {
		return x
	}
	return graph.Concatenate(parts, axis)
}
