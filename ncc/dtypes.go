// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

// WorkingDType returns the floating point dtype used to compute the response for an image of the given
// dtype, and the dtype of the returned response map.
//
//   - Float32 and Float64 are used as is.
//   - Float16 and BFloat16 are computed in Float32, and the response is converted back.
//   - Integers of up to 16 bits are upcast to Float32, larger integers to Float64. The response is
//     returned in the working dtype: squaring integer images would easily overflow.
//
// Bool, complex and invalid dtypes return a *DTypeError.
func WorkingDType(dtype dtypes.DType) (working, output dtypes.DType, err error) {
	switch dtype {
	case dtypes.Float32, dtypes.Float64:
		return dtype, dtype, nil
	case dtypes.Float16, dtypes.BFloat16:
		return dtypes.Float32, dtype, nil
	case dtypes.Int8, dtypes.Int16, dtypes.Uint8, dtypes.Uint16:
		return dtypes.Float32, dtypes.Float32, nil
	case dtypes.Int32, dtypes.Int64, dtypes.Uint32, dtypes.Uint64:
		return dtypes.Float64, dtypes.Float64, nil
	}
	return dtypes.InvalidDType, dtypes.InvalidDType, &DTypeError{Op: "WorkingDType", Input: "input", DType: dtype}
}

// MachineEpsilon returns the difference between 1 and the next representable value of a working dtype
// (Float32 or Float64, see WorkingDType). It's the threshold under which the normalization denominator
// is considered zero.
//
// It returns 0 for any other dtype.
func MachineEpsilon(dtype dtypes.DType) float64 {
	switch dtype {
	case dtypes.Float64:
		return math.Nextafter(1, 2) - 1
	case dtypes.Float32:
		return float64(math.Nextafter32(1, 2) - 1)
	}
	return 0
}
