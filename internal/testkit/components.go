package testkit

import (
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

// StubEstimatorFactory wraps a real estimator factory under another name and
// can inject failures into Fit.
type StubEstimatorFactory struct {
	ComponentName string
	Inner         ports.EstimatorFactory
	StubSpace     *space.ConfigurationSpace

	// FailFit decides per fit whether to fail; nil never fails.
	FailFit func(X mat.Matrix, y []float64) error
	// PanicFit panics instead of returning an error.
	PanicFit bool

	fits atomic.Int64
}

func (f *StubEstimatorFactory) Name() string { return f.ComponentName }

func (f *StubEstimatorFactory) Space() *space.ConfigurationSpace {
	if f.StubSpace != nil {
		return f.StubSpace
	}
	if f.Inner != nil {
		return f.Inner.Space()
	}
	return space.New()
}

func (f *StubEstimatorFactory) New(cfg space.Configuration, seed int64) (ports.Estimator, error) {
	var inner ports.Estimator
	if f.Inner != nil {
		var err error
		if inner, err = f.Inner.New(cfg, seed); err != nil {
			return nil, err
		}
	}
	return &stubEstimator{factory: f, inner: inner}, nil
}

// Fits counts Fit calls across every instance.
func (f *StubEstimatorFactory) Fits() int64 { return f.fits.Load() }

type stubEstimator struct {
	factory *StubEstimatorFactory
	inner   ports.Estimator
	prior   float64
	cols    int
}

func (e *stubEstimator) Fit(X mat.Matrix, y []float64) error {
	e.factory.fits.Add(1)
	if e.factory.PanicFit {
		panic(fmt.Sprintf("%s: injected panic", e.factory.ComponentName))
	}
	if e.factory.FailFit != nil {
		if err := e.factory.FailFit(X, y); err != nil {
			return err
		}
	}
	if e.inner != nil {
		return e.inner.Fit(X, y)
	}
	_, e.cols = X.Dims()
	for _, v := range y {
		e.prior += v
	}
	e.prior /= float64(len(y))
	return nil
}

func (e *stubEstimator) PredictScore(X mat.Matrix) ([]float64, error) {
	if e.inner != nil {
		return e.inner.PredictScore(X)
	}
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = e.prior
	}
	return out, nil
}

// AlwaysFail is a FailFit that reports a fit failure every time.
func AlwaysFail(component string) func(mat.Matrix, []float64) error {
	return func(mat.Matrix, []float64) error {
		return core.NewFitError(component, fmt.Errorf("injected failure"))
	}
}

// StubSelectorFactory is a selector with an arbitrary space that keeps every column.
type StubSelectorFactory struct {
	ComponentName string
	StubSpace     *space.ConfigurationSpace
}

func (f *StubSelectorFactory) Name() string { return f.ComponentName }

func (f *StubSelectorFactory) Space() *space.ConfigurationSpace {
	if f.StubSpace != nil {
		return f.StubSpace
	}
	return space.New()
}

func (f *StubSelectorFactory) New(space.Configuration, int64) (ports.Selector, error) {
	return &keepAll{}, nil
}

type keepAll struct{ cols int }

func (k *keepAll) Fit(X mat.Matrix, _ []float64) error {
	_, k.cols = X.Dims()
	return nil
}

func (k *keepAll) Support() []int {
	out := make([]int, k.cols)
	for i := range out {
		out[i] = i
	}
	return out
}

func (k *keepAll) Transform(X mat.Matrix) (*mat.Dense, error) {
	return mat.DenseCopyOf(X), nil
}
