// Package selectors holds the feature-selection step of a pipeline.
//
// A selector keeps a subset of columns. An empty support is reported as a
// degenerate input so the optimizer can move on to another configuration.
package selectors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
	"gomodsel/domain/dataset"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

type factory struct {
	name  string
	space *space.ConfigurationSpace
	build func(cfg space.Configuration, seed int64) ports.Selector
}

func (f *factory) Name() string                     { return f.name }
func (f *factory) Space() *space.ConfigurationSpace { return f.space }

func (f *factory) New(cfg space.Configuration, seed int64) (ports.Selector, error) {
	if cfg == nil {
		cfg = f.space.Default()
	}
	if err := f.space.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return f.build(cfg, seed), nil
}

// All returns one factory per selector, in a stable order.
func All() []ports.SelectorFactory {
	return []ports.SelectorFactory{
		NewIdentityFactory(),
		NewVarianceThresholdFactory(),
		NewFScoreFactory(),
		NewMutualInformationFactory(),
		NewReliefFFactory(),
	}
}

// ByName picks factories by component name. Unknown names are an error.
func ByName(names ...string) ([]ports.SelectorFactory, error) {
	known := make(map[string]ports.SelectorFactory)
	for _, f := range All() {
		known[f.Name()] = f
	}
	out := make([]ports.SelectorFactory, 0, len(names))
	for _, n := range names {
		f, ok := known[n]
		if !ok {
			return nil, fmt.Errorf("unknown selector %q (known: %v)", n, Names())
		}
		out = append(out, f)
	}
	return out, nil
}

// Names lists the available selectors.
func Names() []string {
	var names []string
	for _, f := range All() {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

// support is the fitted state every selector shares.
type support struct {
	component string
	cols      int
	keep      []int
	fitted    bool
}

func (s *support) Support() []int {
	return append([]int(nil), s.keep...)
}

func (s *support) set(cols int, keep []int) error {
	if len(keep) == 0 {
		return core.NewDegenerateError(s.component, "no feature selected")
	}
	sort.Ints(keep)
	s.cols, s.keep, s.fitted = cols, keep, true
	return nil
}

func (s *support) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !s.fitted {
		return nil, fmt.Errorf("%w: %s: transform before fit", core.ErrFitFailed, s.component)
	}
	if _, c := X.Dims(); c != s.cols {
		return nil, fmt.Errorf("%w: %s: fit on %d features, got %d", core.ErrInputShape, s.component, s.cols, c)
	}
	return dataset.Columns(X, s.keep), nil
}

func checkFitInput(component string, X mat.Matrix, y []float64) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows != len(y) {
		return 0, 0, fmt.Errorf("%w: %s: %d rows vs %d targets", core.ErrInputShape, component, rows, len(y))
	}
	if rows == 0 || cols == 0 {
		return 0, 0, core.NewDegenerateError(component, "empty training matrix")
	}
	return rows, cols, nil
}

// topK returns the indices of the k highest scores. Ties go to the lower
// index; NaN ranks last.
func topK(scores []float64, k int) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	key := func(i int) float64 {
		if math.IsNaN(scores[i]) {
			return math.Inf(-1)
		}
		return scores[i]
	}
	sort.SliceStable(order, func(a, b int) bool { return key(order[a]) > key(order[b]) })
	if k > len(order) {
		k = len(order)
	}
	if k < 0 {
		k = 0
	}
	return append([]int(nil), order[:k]...)
}

// minMaxScale maps every column onto [0, 1]. Constant columns become 0.
func minMaxScale(X mat.Matrix) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.DenseCopyOf(X)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		lo, hi := col[0], col[0]
		for _, v := range col {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		for i, v := range col {
			if hi > lo {
				out.Set(i, j, (v-lo)/(hi-lo))
			} else {
				out.Set(i, j, 0)
			}
		}
	}
	return out
}
