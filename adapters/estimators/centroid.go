package estimators

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

const centroidName = "NearestCentroidEstimator"

// NewNearestCentroidFactory builds a nearest-centroid classifier whose class
// centroids are shrunk toward the overall mean.
func NewNearestCentroidFactory() ports.EstimatorFactory {
	s := space.New().MustAdd(
		space.NewFloat("shrinkage", 0, 0.9, 0),
	)
	return &factory{
		name:  centroidName,
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Estimator {
			return &NearestCentroid{Shrinkage: cfg.Float("shrinkage", 0)}
		},
	}
}

// NearestCentroid scores a row as d_neg / (d_neg + d_pos) on standardised features.
type NearestCentroid struct {
	Shrinkage float64

	centroid [2][]float64
	scale    []float64
	cols     int
}

func (m *NearestCentroid) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkTrainingData(centroidName, X, y)
	if err != nil {
		return err
	}
	col := make([]float64, n)
	overall := make([]float64, p)
	m.scale = make([]float64, p)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		mean, std := stat.MeanStdDev(col, nil)
		overall[j] = mean
		if std == 0 {
			std = 1
		}
		m.scale[j] = std
	}

	for c := 0; c < 2; c++ {
		m.centroid[c] = make([]float64, p)
	}
	var count [2]float64
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		c := 0
		if y[i] > 0.5 {
			c = 1
		}
		mat.Row(row, i, X)
		floats.Add(m.centroid[c], row)
		count[c]++
	}
	for c := 0; c < 2; c++ {
		floats.Scale(1/count[c], m.centroid[c])
		for j := range m.centroid[c] {
			m.centroid[c][j] = (1-m.Shrinkage)*m.centroid[c][j] + m.Shrinkage*overall[j]
		}
		floats.Div(m.centroid[c], m.scale)
	}
	m.cols = p
	return nil
}

func (m *NearestCentroid) PredictScore(X mat.Matrix) ([]float64, error) {
	n, err := checkPredictInput(centroidName, X, m.centroid[0] != nil, m.cols)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	row := make([]float64, m.cols)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		floats.Div(row, m.scale)
		dNeg := floats.Distance(row, m.centroid[0], 2)
		dPos := floats.Distance(row, m.centroid[1], 2)
		if dNeg+dPos == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = dNeg / (dNeg + dPos)
	}
	return finiteScores(centroidName, out)
}
