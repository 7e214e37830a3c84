package selectors

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

// NewVarianceThresholdFactory drops columns whose min-max scaled variance is
// at or below threshold. The scaled variance is at most 0.25.
func NewVarianceThresholdFactory() ports.SelectorFactory {
	s := space.New().MustAdd(space.NewFloat("threshold", 0, 0.2, 0))
	return &factory{
		name:  "VarianceThreshold",
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Selector {
			return &VarianceThreshold{
				Threshold: cfg.Float("threshold", 0),
				support:   support{component: "VarianceThreshold"},
			}
		},
	}
}

type VarianceThreshold struct {
	Threshold float64
	support
}

func (s *VarianceThreshold) Fit(X mat.Matrix, y []float64) error {
	rows, cols, err := checkFitInput(s.component, X, y)
	if err != nil {
		return err
	}
	scaled := minMaxScale(X)
	col := make([]float64, rows)
	var keep []int
	for j := 0; j < cols; j++ {
		mat.Col(col, j, scaled)
		if _, v := stat.PopMeanVariance(col, nil); v > s.Threshold {
			keep = append(keep, j)
		}
	}
	return s.set(cols, keep)
}
