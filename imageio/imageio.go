// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package imageio converts image files to grayscale tensors to be matched with package ncc,
// and response maps back to images.
package imageio

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/gomlx/matching/peaks"
)

// Load decodes the image file in path, applying the EXIF orientation if present.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %q", path)
	}
	return img, nil
}

// ToGrayTensor converts img to luma (Rec. 601) and returns it as a tensor shaped `[height, width]`.
//
// For Float32 and Float64 the values are in [0, 1], for Uint8 they are in [0, 255].
func ToGrayTensor(img image.Image, dtype dtypes.DType) (*tensors.Tensor, error) {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.Errorf("can't convert empty image (%dx%d) to tensor", width, height)
	}
	// Grayscale sets R=G=B to the luma.
	luma := make([]uint8, 0, width*height)
	for y := range height {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+4*width]
		for x := range width {
			luma = append(luma, row[4*x])
		}
	}
	switch dtype {
	case dtypes.Uint8:
		return tensors.FromFlatDataAndDimensions(luma, height, width), nil
	case dtypes.Float32:
		return tensors.FromFlatDataAndDimensions(normalizeLuma[float32](luma), height, width), nil
	case dtypes.Float64:
		return tensors.FromFlatDataAndDimensions(normalizeLuma[float64](luma), height, width), nil
	}
	return nil, errors.Errorf("ToGrayTensor: dtype %s not supported, use Float32, Float64 or Uint8", dtype)
}

func normalizeLuma[T float32 | float64](luma []uint8) []T {
	out := make([]T, len(luma))
	for ii, v := range luma {
		out[ii] = T(v) / 255
	}
	return out
}

// LoadGray loads the image file in path and converts it with ToGrayTensor.
func LoadGray(path string, dtype dtypes.DType) (*tensors.Tensor, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	t, err := ToGrayTensor(img, dtype)
	if err != nil {
		return nil, errors.WithMessagef(err, "image %q", path)
	}
	return t, nil
}

// LoadGrayRegion loads the region rect of the image file in path, e.g.: to cut a template from a larger
// image, and converts it with ToGrayTensor. rect must be within the image bounds.
func LoadGrayRegion(path string, rect image.Rectangle, dtype dtypes.DType) (*tensors.Tensor, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	if rect.Empty() || !rect.In(img.Bounds()) {
		return nil, errors.Errorf("region %v is empty or not within the bounds %v of image %q", rect, img.Bounds(), path)
	}
	return ToGrayTensor(imaging.Crop(img, rect), dtype)
}

// Scale resizes img by factor with a Lanczos filter. The dimensions are rounded and at least 1.
func Scale(img image.Image, factor float64) (image.Image, error) {
	if factor <= 0 || math.IsInf(factor, 0) || math.IsNaN(factor) {
		return nil, errors.Errorf("invalid scale factor %g", factor)
	}
	if factor == 1 {
		return img, nil
	}
	bounds := img.Bounds()
	width := max(int(math.Round(float64(bounds.Dx())*factor)), 1)
	height := max(int(math.Round(float64(bounds.Dy())*factor)), 1)
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// Stack returns a batch shaped `[N, height, width]` with the given gray images, which must all have
// the same shape and dtype.
func Stack(images ...*tensors.Tensor) (*tensors.Tensor, error) {
	if len(images) == 0 {
		return nil, errors.New("Stack: no images given")
	}
	shape := images[0].Shape()
	for ii, img := range images {
		if !img.Shape().Equal(shape) {
			return nil, errors.Errorf("Stack: image #%d has shape %s, but image #0 has shape %s", ii, img.Shape(), shape)
		}
	}
	dims := append([]int{len(images)}, shape.Dimensions...)
	switch shape.DType {
	case dtypes.Uint8:
		return stackAs[uint8](images, dims)
	case dtypes.Float32:
		return stackAs[float32](images, dims)
	case dtypes.Float64:
		return stackAs[float64](images, dims)
	}
	return nil, errors.Errorf("Stack: dtype %s not supported", shape.DType)
}

func stackAs[T uint8 | float32 | float64](images []*tensors.Tensor, dims []int) (*tensors.Tensor, error) {
	data := make([]T, 0, images[0].Shape().Size()*len(images))
	for ii, img := range images {
		values, err := tensors.CopyFlatData[T](img)
		if err != nil {
			return nil, errors.WithMessagef(err, "Stack: reading image #%d", ii)
		}
		data = append(data, values...)
	}
	return tensors.FromFlatDataAndDimensions(data, dims...), nil
}

// ResponseToImage converts the response map with the given index in the batch (0 for a 2D response) to a
// gray image, mapping scores of -1 to black and 1 to white.
func ResponseToImage(response *tensors.Tensor, index int) (*image.Gray, error) {
	scores, err := peaks.FlatScores(response)
	if err != nil {
		return nil, err
	}
	dims := response.Shape().Dimensions
	height, width := dims[len(dims)-2], dims[len(dims)-1]
	numMaps := len(scores) / max(height*width, 1)
	if index < 0 || index >= numMaps {
		return nil, errors.Errorf("ResponseToImage: index %d out of range for response shaped %s", index, response.Shape())
	}
	scores = scores[index*height*width : (index+1)*height*width]
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			v := scores[y*width+x]
			if math.IsNaN(v) {
				v = -1
			}
			v = max(-1, min(v, 1))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round((v + 1) * 127.5))})
		}
	}
	return img, nil
}

// SaveResponse saves the response map with the given index in the batch as a gray image. The format
// is taken from the extension of path.
func SaveResponse(response *tensors.Tensor, index int, path string) error {
	img, err := ResponseToImage(response, index)
	if err != nil {
		return err
	}
	if err = imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "failed to save response map to %q", path)
	}
	return nil
}
