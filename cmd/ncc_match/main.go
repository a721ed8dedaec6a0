// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// ncc_match finds a template in one or more images using normalized cross-correlation.
//
// Usage:
//
//	ncc_match -template=logo.png [-roi=x0,y0,x1,y1] [-backend=go] [-method=auto] [-threshold=0.8] image1.png [image2.png ...]
//
// Images of the same size are matched in one batch; otherwise they are matched one at a time.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/matching/heatmap"
	"github.com/gomlx/matching/imageio"
	"github.com/gomlx/matching/ncc"
)

var (
	flagTemplate = flag.String("template", "", "Image file with the template to search for. "+
		"If -roi is given, the template is the region of this image.")
	flagROI = flag.String("roi", "", "Region of the -template image to use as template, formatted as \"x0,y0,x1,y1\" "+
		"(x1 and y1 exclusive).")
	flagScale   = flag.Float64("scale", 1.0, "Scale factor applied to the images and the template before matching.")
	flagBackend = flag.String("backend", ncc.HostBackendConfig, "Backend configuration: \"go\" for the pure Go backend, "+
		"or \"xla\", \"xla:cpu\", \"xla:cuda\" for XLA.")
	flagMethod    = flag.String("method", "auto", "Cross-correlation method: \"auto\", \"fft\" or \"direct\".")
	flagDType     = flag.String("dtype", "float32", "Working dtype: \"float32\" or \"float64\".")
	flagThreshold = flag.Float64("threshold", 0.8, "Minimum score of the matches reported.")
	flagMax       = flag.Int("max", 10, "Maximum number of matches reported per image.")
	flagHeatmap   = flag.String("heatmap", "", "If set, saves a heat map plot of the response to this file. "+
		"With more than one image, the image index is appended to the file name.")
	flagHeatmapHTML = flag.String("heatmap_html", "", "If set, saves an interactive (Plotly) heat map of the response "+
		"to this HTML file. With more than one image, the image index is appended to the file name.")
	flagResponse = flag.String("response", "", "If set, saves the response map as a gray image to this file. "+
		"With more than one image, the image index is appended to the file name.")
	flagVerify   = flag.Bool("verify", false, "Verifies the response against a naive implementation (slow).")
	flagParallel = flag.Int("parallel", 0, "Number of images of different sizes matched at the same time. "+
		"If 0, the number of CPUs is used.")
	flagCSV   = flag.String("csv", "", "If set, saves the matches found as CSV to this file.")
	flagColor = flag.Bool("color", true, "Use colors in the tables printed. Disable for plain text output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	imagePaths := flag.Args()
	if *flagTemplate == "" {
		klog.Errorf("Missing -template. See 'ncc_match -help'.")
		os.Exit(1)
	}
	if len(imagePaths) == 0 {
		klog.Errorf("Missing images to search. See 'ncc_match -help'.")
		os.Exit(1)
	}
	if !*flagColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	method := must.M1(ncc.ParseMethod(*flagMethod))
	dtype := must.M1(parseDType(*flagDType))

	template := must.M1(loadGray(*flagTemplate, *flagROI, dtype))
	images := make([]*tensors.Tensor, len(imagePaths))
	for ii, imagePath := range imagePaths {
		images[ii] = must.M1(loadGray(imagePath, "", dtype))
	}

	backend := must.M1(backends.NewWithConfig(*flagBackend))
	defer backend.Finalize()
	matcher := ncc.NewMatcher(backend).WithMethod(method)

	results := must.M1(matchAll(matcher, imagePaths, images, template))
	report(backend, method, template, results)
	if *flagCSV != "" {
		must.M(saveCSV(*flagCSV, results))
	}

	for ii, result := range results {
		if *flagHeatmap != "" {
			must.M(saveHeatmap(result, indexedPath(*flagHeatmap, ii, len(results))))
		}
		if *flagHeatmapHTML != "" {
			must.M(heatmap.SaveHTML(result.response, result.index, result.matches, indexedPath(*flagHeatmapHTML, ii, len(results))))
		}
		if *flagResponse != "" {
			must.M(imageio.SaveResponse(result.response, result.index, indexedPath(*flagResponse, ii, len(results))))
		}
	}
}

func parseDType(name string) (dtypes.DType, error) {
	switch strings.ToLower(name) {
	case "float32":
		return dtypes.Float32, nil
	case "float64":
		return dtypes.Float64, nil
	}
	return dtypes.InvalidDType, errors.Errorf("invalid -dtype=%q, valid values are \"float32\" and \"float64\"", name)
}

// parseROI parses "x0,y0,x1,y1".
func parseROI(roi string) (image.Rectangle, error) {
	parts := strings.Split(roi, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, errors.Errorf("invalid -roi=%q, it must be formatted as \"x0,y0,x1,y1\"", roi)
	}
	var coords [4]int
	for ii, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return image.Rectangle{}, errors.Wrapf(err, "invalid -roi=%q", roi)
		}
		coords[ii] = v
	}
	return image.Rect(coords[0], coords[1], coords[2], coords[3]), nil
}

// loadGray loads the image in path, optionally cropped to roi, scaled by -scale.
func loadGray(path, roi string, dtype dtypes.DType) (*tensors.Tensor, error) {
	img, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	if roi != "" {
		rect, err := parseROI(roi)
		if err != nil {
			return nil, err
		}
		if rect.Empty() || !rect.In(img.Bounds()) {
			return nil, errors.Errorf("-roi=%q is empty or outside of the bounds %v of %q", roi, img.Bounds(), path)
		}
		img = imaging.Crop(img, rect)
	}
	img, err = imageio.Scale(img, *flagScale)
	if err != nil {
		return nil, err
	}
	return imageio.ToGrayTensor(img, dtype)
}

// indexedPath appends the index to the base name of path, if there is more than one output.
func indexedPath(path string, index, count int) string {
	if count <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%03d%s", strings.TrimSuffix(path, ext), index, ext)
}
