// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Method used to compute the raw cross-correlation between the image and the template.
type Method int

const (
	// MethodAuto uses MethodFFT if the backend supports the FFT operation, and MethodDirect otherwise.
	MethodAuto Method = iota

	// MethodFFT multiplies the 2D Fourier transforms of the image and the flipped template.
	// The cost is O(H*W*log(H*W)) regardless of the template size.
	MethodFFT

	// MethodDirect uses the backend convolution. The cost is O(H*W*h*w), but it is available
	// on every backend, and it's often faster for small templates.
	MethodDirect
)

var methodNames = []string{"auto", "fft", "direct"}

// String implements fmt.Stringer.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "Method(" + strconv.Itoa(int(m)) + ")"
	}
	return methodNames[m]
}

// ParseMethod converts "auto", "fft" or "direct" (case-insensitive) to a Method.
func ParseMethod(name string) (Method, error) {
	for ii, methodName := range methodNames {
		if strings.EqualFold(name, methodName) {
			return Method(ii), nil
		}
	}
	return MethodAuto, errors.Errorf("unknown cross-correlation method %q, valid values are %q", name, methodNames)
}

// resolveMethod converts MethodAuto to the concrete method supported by the backend of g.
// It panics if MethodFFT is requested on a backend without the FFT operation.
func resolveMethod(g *graph.Graph, method Method) Method {
	hasFFT := g.Backend().Capabilities().Operations[backends.OpTypeFFT]
	switch {
	case method == MethodAuto && hasFFT:
		return MethodFFT
	case method == MethodAuto:
		return MethodDirect
	case method == MethodFFT && !hasFFT:
		exceptions.Panicf("cross-correlation method %s requires the FFT operation, not supported by backend %q, use %s instead",
			method, g.Backend().Name(), MethodDirect)
	}
	return method
}

// CrossCorrelate returns the raw "valid" cross-correlation of image and template over the last two axes:
//
//	output[n, y, x] = Sum_{i,j} image[n, y+i, x+j] * template[n, i, j]
//
// The image must be shaped `[N, H, W]` and the template either `[N, h, w]`, for one template per
// image, or `[1, h, w]`, to correlate every image with the same template. Both must have the same
// float dtype. The output is shaped `[N, H-h+1, W-w+1]`: only placements where the template fits
// fully inside the image are computed.
func CrossCorrelate(image, template *graph.Node, method Method) *graph.Node {
	if image.Rank() != 3 || template.Rank() != 3 {
		exceptions.Panicf("CrossCorrelate requires image and template shaped [batch, height, width], got image.shape=%s, template.shape=%s",
			image.Shape(), template.Shape())
	}
	if image.DType() != template.DType() || !image.DType().IsFloat() {
		exceptions.Panicf("CrossCorrelate requires image and template with the same float dtype, got image.shape=%s, template.shape=%s",
			image.Shape(), template.Shape())
	}
	imageDims, templateDims := image.Shape().Dimensions, template.Shape().Dimensions
	if templateDims[0] != 1 && templateDims[0] != imageDims[0] {
		exceptions.Panicf("CrossCorrelate requires the template batch dimension to be 1 or equal to the image's, got image.shape=%s, template.shape=%s",
			image.Shape(), template.Shape())
	}
	if templateDims[1] > imageDims[1] || templateDims[2] > imageDims[2] {
		exceptions.Panicf("CrossCorrelate requires the template to fit the image, got image.shape=%s, template.shape=%s",
			image.Shape(), template.Shape())
	}

	method = resolveMethod(image.Graph(), method)
	klog.V(1).Infof("CrossCorrelate(image.shape=%s, template.shape=%s): using method %s on backend %q",
		image.Shape(), template.Shape(), method, image.Graph().Backend().Name())
	switch method {
	case MethodFFT:
		return crossCorrelateFFT(image, template)
	case MethodDirect:
		return crossCorrelateDirect(image, template)
	}
	exceptions.Panicf("CrossCorrelate: invalid method %s", method)
	return nil
}

// crossCorrelateFFT implements MethodFFT: correlation(f, g) = convolution(f, reverse(g)).
func crossCorrelateFFT(image, template *graph.Node) *graph.Node {
	imageDims, templateDims := image.Shape().Dimensions, template.Shape().Dimensions
	height, width := imageDims[1], imageDims[2]
	templateH, templateW := templateDims[1], templateDims[2]

	// Linear (not circular) convolution requires the transforms to cover the full output.
	fullH := height + templateH - 1
	fullW := width + templateW - 1
	fullW += fullW % 2 // InverseRealFFT can only restore even lengths.
	padToFull := func(x *graph.Node) *graph.Node {
		dims := x.Shape().Dimensions
		return zeroPad(zeroPad(x, 1, 0, fullH-dims[1]), 2, 0, fullW-dims[2])
	}

	imageFreq := fft2D(padToFull(image))
	templateFreq := fft2D(padToFull(graph.Reverse(template, 1, 2)))
	if templateDims[0] != imageDims[0] {
		templateFreq = graph.BroadcastToDims(templateFreq, imageFreq.Shape().Dimensions...)
	}
	full := inverseFFT2D(graph.Mul(imageFreq, templateFreq))

	// "Valid" part of the convolution: the template fully overlaps the image.
	return graph.Slice(full,
		graph.AxisRange(),
		graph.AxisRange(templateH-1, height),
		graph.AxisRange(templateW-1, width))
}

// fft2D transforms a real x shaped `[N, H, W]` (W must be even) to the frequency domain over the last two axes.
// The result is complex and shaped `[N, W/2+1, H]`: the spatial axes are transposed, see inverseFFT2D.
func fft2D(x *graph.Node) *graph.Node {
	x = graph.RealFFT(x)
	x = graph.Transpose(x, 1, 2)
	return graph.FFT(x)
}

// inverseFFT2D reverses fft2D, returning a real tensor shaped `[N, H, W]`.
func inverseFFT2D(x *graph.Node) *graph.Node {
	x = graph.InverseFFT(x)
	x = graph.Transpose(x, 1, 2)
	return graph.InverseRealFFT(x)
}

// crossCorrelateDirect implements MethodDirect with the backend convolution, which is a correlation
// (the kernel is not flipped).
func crossCorrelateDirect(image, template *graph.Node) *graph.Node {
	imageDims, templateDims := image.Shape().Dimensions, template.Shape().Dimensions
	numBatch, height, width := imageDims[0], imageDims[1], imageDims[2]
	templateH, templateW := templateDims[1], templateDims[2]
	outputH, outputW := height-templateH+1, width-templateW+1

	// Convolve takes channels-last inputs ([batch, H, W, channels]) and kernels shaped
	// [h, w, inputChannels, outputChannels].
	if templateDims[0] == 1 {
		kernel := graph.Reshape(template, templateH, templateW, 1, 1)
		output := graph.Convolve(graph.Reshape(image, numBatch, height, width, 1), kernel).NoPadding().Done()
		return graph.Reshape(output, numBatch, outputH, outputW)
	}

	// One template per image.
	parts := make([]*graph.Node, numBatch)
	for ii := range parts {
		x := graph.Reshape(graph.Slice(image, graph.AxisElem(ii)), 1, height, width, 1)
		kernel := graph.Reshape(graph.Slice(template, graph.AxisElem(ii)), templateH, templateW, 1, 1)
		parts[ii] = graph.Convolve(x, kernel).NoPadding().Done()
	}
	output := parts[0]
	if numBatch > 1 {
		output = graph.Concatenate(parts, 0)
	}
	return graph.Reshape(output, numBatch, outputH, outputW)
}

// TrimBorder removes one element from each border of the last two axes of x.
//
// The valid cross-correlation of the padded image and WindowSum of the padded image differ by exactly
// this border: WindowSum's element (y, x) refers to the window starting at (y+1, x+1).
func TrimBorder(x *graph.Node) *graph.Node {
	dims := x.Shape().Dimensions
	rank := x.Rank()
	if rank < 2 || dims[rank-2] < 2 || dims[rank-1] < 2 {
		exceptions.Panicf("TrimBorder requires at least 2 elements in the last two axes, got x.shape=%s", x.Shape())
	}
	x = graph.SliceAxis(x, rank-2, graph.AxisRange(1, dims[rank-2]-1))
	return graph.SliceAxis(x, rank-1, graph.AxisRange(1, dims[rank-1]-1))
}
