package ports

import (
	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/space"
)

// Component is what every collaborator factory exposes to the pipeline factory.
type Component interface {
	// Name identifies the component and namespaces its hyperparameters.
	Name() string
	// Space describes the tunable hyperparameters. It may be empty, never nil.
	Space() *space.ConfigurationSpace
}

// EstimatorFactory builds fresh classifiers from a configuration.
type EstimatorFactory interface {
	Component
	New(cfg space.Configuration, seed int64) (Estimator, error)
}

// Estimator is a binary classifier.
//
// Fit errors that a different configuration could avoid should wrap one of
// core.ErrFitFailed, core.ErrDegenerateInput or core.ErrNumerical.
type Estimator interface {
	Fit(X mat.Matrix, y []float64) error
	// PredictScore returns the positive-class score of each row, in [0, 1].
	PredictScore(X mat.Matrix) ([]float64, error)
}

// SelectorFactory builds fresh feature selectors from a configuration.
type SelectorFactory interface {
	Component
	New(cfg space.Configuration, seed int64) (Selector, error)
}

// Selector picks a subset of feature columns.
type Selector interface {
	Fit(X mat.Matrix, y []float64) error
	// Support lists the kept column indices in ascending order.
	Support() []int
	Transform(X mat.Matrix) (*mat.Dense, error)
}

// FeatureScorer maps (X, y) to one importance value per column. Higher is
// more relevant. Selectors that rank features accept one.
type FeatureScorer interface {
	Name() string
	Score(X mat.Matrix, y []float64) ([]float64, error)
}
