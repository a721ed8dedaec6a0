// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ncc implements template matching by normalized cross-correlation (NCC) as GoMLX computation
// graphs, so the same code runs on the pure Go backend and on accelerators (XLA CPU/GPU).
//
// For every placement of a template fully inside an image, the score is the Pearson correlation between
// the template and the image window under it: 1 for a perfect match (up to brightness and contrast),
// -1 for an inverted match, and 0 where either has no variance.
//
// The building blocks are exported as graph functions: WindowSum (local sums from prefix sums),
// CrossCorrelate (FFT-based or direct convolution), and Normalize. MatchTemplate combines them.
//
// Match and MatchAccelerated are the simple entry points, taking tensors or Go slices:
//
//	response, err := ncc.Match(image, template)  // [H-h+1, W-w+1]
//
// Matcher reuses a backend owned by the caller.
//
// # Build tags
//
// The "noxla" build tag excludes the XLA backend, and MatchAccelerated returns an error.
package ncc
