// Package pipeline combines selectors and estimators into the candidate
// pipelines a run compares.
package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/space"
	apperrors "gomodsel/internal/errors"
	"gomodsel/internal/rng"
	"gomodsel/ports"
)

// Pipeline is an immutable (selector, estimator) pair with its merged,
// namespaced configuration space. It is safe to share across workers.
type Pipeline struct {
	Selector  ports.SelectorFactory
	Estimator ports.EstimatorFactory

	id    string
	space *space.ConfigurationSpace
}

// New builds a single pipeline. Hyperparameters are namespaced as
// <component>__<name>.
func New(sel ports.SelectorFactory, est ports.EstimatorFactory) (*Pipeline, error) {
	if sel == nil || est == nil {
		return nil, apperrors.ConfigurationConflict("pipeline needs both a selector and an estimator")
	}
	selName, estName := sel.Name(), est.Name()
	if selName == "" || estName == "" {
		return nil, apperrors.ConfigurationConflict("component with empty name (selector %q, estimator %q)", selName, estName)
	}
	if selName == estName {
		return nil, apperrors.ConfigurationConflict("selector and estimator share the name %q", selName)
	}

	id := selName + space.Separator + estName
	merged := space.New()
	for _, part := range []struct {
		name string
		s    *space.ConfigurationSpace
	}{{selName, sel.Space()}, {estName, est.Space()}} {
		if err := merged.Merge(part.name, part.s); err != nil {
			return nil, apperrors.ConfigurationConflict("pipeline %s: %v", id, err)
		}
	}
	return &Pipeline{Selector: sel, Estimator: est, id: id, space: merged}, nil
}

// Build returns the cross product of selectors and estimators, selector-major.
// Empty or repeated component names within a registry are a conflict.
func Build(selectors []ports.SelectorFactory, estimators []ports.EstimatorFactory) ([]*Pipeline, error) {
	if len(selectors) == 0 || len(estimators) == 0 {
		return nil, apperrors.ConfigurationConflict("need at least one selector and one estimator, got %d and %d", len(selectors), len(estimators))
	}
	if err := uniqueNames("selector", selectors); err != nil {
		return nil, err
	}
	if err := uniqueNames("estimator", estimators); err != nil {
		return nil, err
	}

	out := make([]*Pipeline, 0, len(selectors)*len(estimators))
	for _, sel := range selectors {
		for _, est := range estimators {
			p, err := New(sel, est)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func uniqueNames[T ports.Component](kind string, components []T) error {
	seen := make(map[string]bool, len(components))
	for _, c := range components {
		name := c.Name()
		if name == "" {
			return apperrors.ConfigurationConflict("%s with empty name", kind)
		}
		if seen[name] {
			return apperrors.ConfigurationConflict("%s %q registered twice", kind, name)
		}
		seen[name] = true
	}
	return nil
}

// ID is the selector name and the estimator name joined by "__".
func (p *Pipeline) ID() string { return p.id }

// Space is the merged configuration space. Callers must not modify it.
func (p *Pipeline) Space() *space.ConfigurationSpace { return p.space }

// Instantiate validates cfg against the merged space and builds fresh
// component instances. Each call returns independent state.
func (p *Pipeline) Instantiate(cfg space.Configuration, seed int64) (*Instance, error) {
	if cfg == nil {
		cfg = p.space.Default()
	}
	if err := p.space.Validate(cfg); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.id, err)
	}
	sel, err := p.Selector.New(cfg.Strip(p.Selector.Name()), rng.Derive(seed, p.Selector.Name()))
	if err != nil {
		return nil, err
	}
	est, err := p.Estimator.New(cfg.Strip(p.Estimator.Name()), rng.Derive(seed, p.Estimator.Name()))
	if err != nil {
		return nil, err
	}
	return &Instance{pipelineID: p.id, selector: sel, estimator: est}, nil
}

// Instance is one configured, single-use pipeline.
type Instance struct {
	pipelineID string
	selector   ports.Selector
	estimator  ports.Estimator
}

// Fit fits the selector, then the estimator on the selected columns.
func (in *Instance) Fit(X mat.Matrix, y []float64) error {
	if err := in.selector.Fit(X, y); err != nil {
		return err
	}
	Xs, err := in.selector.Transform(X)
	if err != nil {
		return err
	}
	return in.estimator.Fit(Xs, y)
}

// PredictScore returns positive-class scores in [0, 1].
func (in *Instance) PredictScore(X mat.Matrix) ([]float64, error) {
	Xs, err := in.selector.Transform(X)
	if err != nil {
		return nil, err
	}
	return in.estimator.PredictScore(Xs)
}

// Predict thresholds PredictScore at 0.5.
func (in *Instance) Predict(X mat.Matrix) ([]float64, error) {
	scores, err := in.PredictScore(X)
	if err != nil {
		return nil, err
	}
	labels := make([]float64, len(scores))
	for i, s := range scores {
		if s >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Support is the feature subset the fitted selector kept.
func (in *Instance) Support() []int {
	return in.selector.Support()
}
