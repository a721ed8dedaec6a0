// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ncc

import (
	"os"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// HostBackendConfig is the backend configuration used by Match: the pure Go backend.
	HostBackendConfig = "go"

	// AcceleratorEnv is the environment variable with the backend configuration used by MatchAccelerated,
	// e.g. "xla:cpu" or "xla:cuda".
	AcceleratorEnv = "NCC_ACCELERATOR"

	// DefaultAcceleratorConfig is used by MatchAccelerated if AcceleratorEnv is not set.
	// It selects the best PJRT plugin available.
	DefaultAcceleratorConfig = "xla"
)

// Matcher matches templates against images on a backend owned by the caller.
//
// A Matcher is immutable: WithMethod returns a new one. It can be used concurrently, each call to
// Match builds its own executor.
type Matcher struct {
	backend backends.Backend
	method  Method
}

// NewMatcher returns a Matcher that executes on the given backend.
func NewMatcher(backend backends.Backend) *Matcher {
	return &Matcher{backend: backend, method: MethodAuto}
}

// WithMethod returns a copy of the Matcher that computes the raw cross-correlation with the given method.
// Default is MethodAuto.
func (m *Matcher) WithMethod(method Method) *Matcher {
	return &Matcher{backend: m.backend, method: method}
}

// Method returns the cross-correlation method configured.
func (m *Matcher) Method() Method {
	return m.method
}

// Backend used by the Matcher.
func (m *Matcher) Backend() backends.Backend {
	return m.backend
}

// Match returns the response map of matching template against image, see MatchTemplate for the semantics.
//
// image and template can be *tensors.Tensor or Go (multi-dimensional) slices of a numeric type.
// The shapes are validated before anything is executed: errors can be tested with errors.Is against
// ErrShape and ErrDType, or with errors.As against *ShapeError and *DTypeError.
//
// The returned tensor is local (already transferred from the backend), and owned by the caller.
func (m *Matcher) Match(image, template any) (*tensors.Tensor, error) {
	imageT, err := toTensor("image", image)
	if err != nil {
		return nil, err
	}
	if imageT != image {
		defer imageT.FinalizeAll()
	}
	templateT, err := toTensor("template", template)
	if err != nil {
		return nil, err
	}
	if templateT != template {
		defer templateT.FinalizeAll()
	}
	if _, err = newLayout("Match", imageT.Shape(), templateT.Shape()); err != nil {
		return nil, err
	}

	start := time.Now()
	var response *tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		exec, err := graph.NewExec(m.backend, func(image, template *graph.Node) *graph.Node {
			return MatchTemplate(image, template).Method(m.method).Done()
		})
		if err != nil {
			panic(err)
		}
		defer exec.Finalize()
		outputs, err := exec.Exec(imageT, templateT)
		if err != nil {
			panic(err)
		}
		response = outputs[0]
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "ncc.Match(image.shape=%s, template.shape=%s) on backend %q",
			imageT.Shape(), templateT.Shape(), m.backend.Name())
	}

	// Synchronize: copy the result to local memory and release the backend buffers.
	local, err := response.LocalClone()
	response.FinalizeAll()
	if err != nil {
		return nil, errors.WithMessagef(err, "ncc.Match: transferring response on backend %q", m.backend.Name())
	}
	klog.V(2).Infof("ncc.Match(image.shape=%s, template.shape=%s) on backend %q: %s",
		imageT.Shape(), templateT.Shape(), m.backend.Name(), time.Since(start))
	return local, nil
}

// toTensor converts value to a tensor, if it is not one already.
func toTensor(name string, value any) (t *tensors.Tensor, err error) {
	if t, ok := value.(*tensors.Tensor); ok {
		if t == nil {
			return nil, errors.Errorf("ncc: %s is a nil tensor", name)
		}
		return t, nil
	}
	err = exceptions.TryCatch[error](func() { t = tensors.FromAnyValue(value) })
	if err != nil {
		return nil, errors.WithMessagef(err, "ncc: can't convert %s of type %T to a tensor", name, value)
	}
	return t, nil
}

// newBackend creates the backend for config, converting panics to errors.
func newBackend(config string) (backend backends.Backend, err error) {
	err = exceptions.TryCatch[error](func() {
		var newErr error
		backend, newErr = backends.NewWithConfig(config)
		if newErr != nil {
			panic(newErr)
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "ncc: can't create backend %q", config)
	}
	klog.V(1).Infof("ncc: backend %q: %s", config, backend.Description())
	return backend, nil
}

// Match matches template against image on the host (pure Go) backend. See Matcher.Match.
//
// It creates and releases a backend on each call: to match many images, create one Matcher
// with NewMatcher and reuse it.
func Match(image, template any) (*tensors.Tensor, error) {
	backend, err := newBackend(HostBackendConfig)
	if err != nil {
		return nil, err
	}
	defer backend.Finalize()
	return NewMatcher(backend).Match(image, template)
}

// MatchAccelerated matches template against image on the accelerator (XLA) backend, configured by the
// environment variable NCC_ACCELERATOR (default "xla"). See Matcher.Match.
//
// The result is numerically equivalent to Match, up to floating point round-off.
// It returns an error if the accelerator can't be created, or if the program was built
// with the "noxla" tag.
func MatchAccelerated(image, template any) (*tensors.Tensor, error) {
	if !acceleratorAvailable {
		return nil, errors.New("ncc: MatchAccelerated is not available: built with the \"noxla\" tag")
	}
	config := DefaultAcceleratorConfig
	if value, found := os.LookupEnv(AcceleratorEnv); found && value != "" {
		config = value
	}
	backend, err := newBackend(config)
	if err != nil {
		return nil, err
	}
	defer backend.Finalize()
	return NewMatcher(backend).Match(image, template)
}
