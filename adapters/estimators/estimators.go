// Package estimators holds the binary classifiers pipelines can end in.
//
// Every estimator outputs a positive-class score in [0, 1]. Fit failures a
// different configuration might avoid are reported with the core trial errors.
package estimators

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

type factory struct {
	name  string
	space *space.ConfigurationSpace
	build func(cfg space.Configuration, seed int64) ports.Estimator
}

func (f *factory) Name() string                     { return f.name }
func (f *factory) Space() *space.ConfigurationSpace { return f.space }

func (f *factory) New(cfg space.Configuration, seed int64) (ports.Estimator, error) {
	if cfg == nil {
		cfg = f.space.Default()
	}
	if err := f.space.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return f.build(cfg, seed), nil
}

// All returns one factory per estimator, in a stable order.
func All() []ports.EstimatorFactory {
	return []ports.EstimatorFactory{
		NewLogRegFactory(),
		NewGNBFactory(),
		NewKNNFactory(),
		NewNearestCentroidFactory(),
		NewSVCFactory(),
	}
}

// ByName picks factories by component name. Unknown names are an error.
func ByName(names ...string) ([]ports.EstimatorFactory, error) {
	known := make(map[string]ports.EstimatorFactory)
	for _, f := range All() {
		known[f.Name()] = f
	}
	out := make([]ports.EstimatorFactory, 0, len(names))
	for _, n := range names {
		f, ok := known[n]
		if !ok {
			return nil, fmt.Errorf("unknown estimator %q (known: %v)", n, Names())
		}
		out = append(out, f)
	}
	return out, nil
}

// Names lists the available estimators.
func Names() []string {
	var names []string
	for _, f := range All() {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

// checkTrainingData validates X and y before fitting. Single-class targets are
// a degenerate input.
func checkTrainingData(component string, X mat.Matrix, y []float64) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows != len(y) {
		return 0, 0, fmt.Errorf("%w: %s: %d rows vs %d targets", core.ErrInputShape, component, rows, len(y))
	}
	if rows == 0 || cols == 0 {
		return 0, 0, core.NewDegenerateError(component, "empty training matrix")
	}
	var pos int
	for _, v := range y {
		if v > 0.5 {
			pos++
		}
	}
	if pos == 0 || pos == rows {
		return 0, 0, core.NewDegenerateError(component, "training target has one class")
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, core.NewNumericalError(component, fmt.Sprintf("non-finite feature at (%d, %d)", i, j))
			}
		}
	}
	return rows, cols, nil
}

// checkPredictInput ensures X has the column count the model was fit on.
func checkPredictInput(component string, X mat.Matrix, fitted bool, cols int) (int, error) {
	if !fitted {
		return 0, fmt.Errorf("%w: %s: predict before fit", core.ErrFitFailed, component)
	}
	r, c := X.Dims()
	if c != cols {
		return 0, fmt.Errorf("%w: %s: fit on %d features, got %d", core.ErrInputShape, component, cols, c)
	}
	return r, nil
}

// finiteScores rejects NaN and clamps scores into [0, 1].
func finiteScores(component string, scores []float64) ([]float64, error) {
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, core.NewNumericalError(component, "non-finite score")
		}
		scores[i] = math.Min(1, math.Max(0, s))
	}
	return scores, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
