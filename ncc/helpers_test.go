// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/stretchr/testify/require"
)

var (
	hostBackendOnce sync.Once
	hostBackend     backends.Backend
	hostBackendErr  error

	acceleratorOnce    sync.Once
	acceleratorBackend backends.Backend
	acceleratorErr     error
)

// buildHostBackend returns the shared pure Go backend used by the tests.
func buildHostBackend(t *testing.T) backends.Backend {
	hostBackendOnce.Do(func() {
		hostBackend, hostBackendErr = newBackend(HostBackendConfig)
		if hostBackendErr == nil {
			fmt.Printf("Host backend: %s\n", hostBackend.Description())
		}
	})
	require.NoError(t, hostBackendErr)
	return hostBackend
}

// acceleratorConfig is the backend configuration used for the accelerator tests: "xla:cpu" by default.
func acceleratorConfig() string {
	if value := os.Getenv(AcceleratorEnv); value != "" {
		return value
	}
	return "xla:cpu"
}

// buildAcceleratorBackend returns the shared XLA backend, or skips the test if it is not available.
func buildAcceleratorBackend(t *testing.T) backends.Backend {
	if !acceleratorAvailable {
		t.Skip("built with the noxla tag")
	}
	acceleratorOnce.Do(func() { acceleratorBackend, acceleratorErr = newBackend(acceleratorConfig()) })
	if acceleratorErr != nil {
		t.Skipf("accelerator backend not available: %v", acceleratorErr)
	}
	return acceleratorBackend
}

// buildFFTBackends returns the backends available to the tests that support the FFT operation, or skips
// the test if there are none.
func buildFFTBackends(t *testing.T) []backends.Backend {
	var found []backends.Backend
	candidates := []backends.Backend{buildHostBackend(t)}
	if acceleratorAvailable {
		acceleratorOnce.Do(func() { acceleratorBackend, acceleratorErr = newBackend(acceleratorConfig()) })
		if acceleratorErr == nil {
			candidates = append(candidates, acceleratorBackend)
		}
	}
	for _, backend := range candidates {
		if backend.Capabilities().Operations[backends.OpTypeFFT] {
			found = append(found, backend)
		}
	}
	if len(found) == 0 {
		t.Skip("no backend with FFT support available")
	}
	return found
}

// randomImage returns a height x width image with values uniformly distributed in [0, 1).
func randomImage(rng *rand.Rand, height, width int) [][]float64 {
	img := make([][]float64, height)
	for y := range img {
		img[y] = make([]float64, width)
		for x := range img[y] {
			img[y][x] = rng.Float64()
		}
	}
	return img
}

// crop returns a copy of the sub-image of img at (y0, x0) of dimensions (height, width).
func crop[T any](img [][]T, y0, x0, height, width int) [][]T {
	out := make([][]T, height)
	for y := range out {
		out[y] = append([]T(nil), img[y0+y][x0:x0+width]...)
	}
	return out
}

// convertImage converts the values of img to the type T.
func convertImage[T float32 | float64 | uint8 | int32](img [][]float64, scale float64) [][]T {
	out := make([][]T, len(img))
	for y, row := range img {
		out[y] = make([]T, len(row))
		for x, v := range row {
			out[y][x] = T(v * scale)
		}
	}
	return out
}

// flat2D collapses a [][]float64 into a slice.
func flat2D(img [][]float64) []float64 {
	var out []float64
	for _, row := range img {
		out = append(out, row...)
	}
	return out
}
