// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"slices"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/gomlx/matching/imageio"
	"github.com/gomlx/matching/internal/naive"
	"github.com/gomlx/matching/internal/workerspool"
	"github.com/gomlx/matching/ncc"
	"github.com/gomlx/matching/peaks"
)

// result of matching the template on one image.
type result struct {
	path  string
	image *tensors.Tensor

	// response may hold the responses of the whole batch: index is the one of this image.
	response *tensors.Tensor
	index    int

	best    peaks.Peak
	matches []peaks.Peak
	elapsed time.Duration
	batched bool

	// maxDiff is the maximum absolute difference to the naive implementation, NaN if not verified.
	maxDiff float64
}

func isAllEqual[E any](s []E, equal func(a, b E) bool) bool {
	for _, e := range s[min(1, len(s)):] {
		if !equal(s[0], e) {
			return false
		}
	}
	return true
}

// matchAll matches the template on every image: as one batch if they all have the same shape,
// otherwise each image separately, -parallel at a time.
func matchAll(matcher *ncc.Matcher, paths []string, images []*tensors.Tensor, template *tensors.Tensor) ([]*result, error) {
	templateDims := template.Shape().Dimensions
	opts := peaks.Options{
		Threshold:  *flagThreshold,
		MaxResults: *flagMax,
		SuppressH:  templateDims[0],
		SuppressW:  templateDims[1],
	}
	results := make([]*result, len(images))
	for ii := range images {
		results[ii] = &result{path: paths[ii], image: images[ii], maxDiff: math.NaN()}
	}

	sameShape := isAllEqual(images, func(a, b *tensors.Tensor) bool { return a.Shape().Equal(b.Shape()) })
	if len(images) > 1 && sameShape {
		klog.V(1).Infof("Matching %d images of shape %s in one batch", len(images), images[0].Shape())
		batch, err := imageio.Stack(images...)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		response, err := matcher.Match(batch, template)
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)
		if err = collectPeaks(response, results, opts); err != nil {
			return nil, err
		}
		for ii, r := range results {
			r.response, r.index, r.elapsed, r.batched = response, ii, elapsed, true
		}

	} else {
		bar := progressbar.NewOptions(len(images),
			progressbar.OptionSetDescription("matching"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
			progressbar.OptionClearOnFinish())
		pool := workerspool.New(*flagParallel)
		err := pool.Run(len(results), func(ii int) error {
			r := results[ii]
			start := time.Now()
			response, err := matcher.Match(images[ii], template)
			if err != nil {
				return errors.WithMessagef(err, "matching %q", r.path)
			}
			r.response, r.elapsed = response, time.Since(start)
			if err = collectPeaks(response, results[ii:ii+1], opts); err != nil {
				return err
			}
			_ = bar.Add(1)
			return nil
		})
		if err != nil {
			return nil, err
		}
		_ = bar.Finish()
	}

	if *flagVerify {
		for _, r := range results {
			if err := verify(r, template); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// collectPeaks sets the best placement and the matches of each result from response, whose
// batch axis (if any) is aligned with results.
func collectPeaks(response *tensors.Tensor, results []*result, opts peaks.Options) error {
	best, err := peaks.Best(response)
	if err != nil {
		return err
	}
	for ii, p := range best {
		results[ii].best = p
	}
	found, err := peaks.FindAll(response, opts)
	if err != nil {
		return err
	}
	for _, p := range found {
		ii := 0
		if len(p.Batch) > 0 {
			ii = p.Batch[0]
		}
		results[ii].matches = append(results[ii].matches, p)
	}
	return nil
}

// verify compares the response of r against the naive implementation.
func verify(r *result, template *tensors.Tensor) error {
	imageValues, err := peaks.FlatScores(r.image)
	if err != nil {
		return err
	}
	templateValues, err := peaks.FlatScores(template)
	if err != nil {
		return err
	}
	imageDims, templateDims := r.image.Shape().Dimensions, template.Shape().Dimensions
	want, err := naive.MatchFlat(imageValues, imageDims[0], imageDims[1], templateValues, templateDims[0], templateDims[1])
	if err != nil {
		return err
	}
	scores, err := peaks.FlatScores(r.response)
	if err != nil {
		return err
	}
	got := scores[r.index*len(want) : (r.index+1)*len(want)]
	r.maxDiff = 0
	for ii := range want {
		r.maxDiff = max(r.maxDiff, math.Abs(want[ii]-got[ii]))
	}
	klog.V(1).Infof("%q: max difference to naive implementation %g", r.path, r.maxDiff)
	return nil
}

// uniqueResponses returns the distinct response tensors of results.
func uniqueResponses(results []*result) []*tensors.Tensor {
	var responses []*tensors.Tensor
	for _, r := range results {
		if !slices.Contains(responses, r.response) {
			responses = append(responses, r.response)
		}
	}
	return responses
}
