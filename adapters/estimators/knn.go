package estimators

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

const knnName = "KNNEstimator"

// NewKNNFactory builds k-nearest-neighbours. p is only active for the
// minkowski metric.
func NewKNNFactory() ports.EstimatorFactory {
	s := space.New().MustAdd(
		space.NewInt("n_neighbors", 3, 100, 5),
		space.NewCategorical("weights", []string{"uniform", "distance"}, "uniform"),
		space.NewCategorical("metric", []string{"minkowski", "euclidean", "manhattan", "chebyshev"}, "minkowski"),
		space.NewInt("p", 1, 5, 2),
	)
	s.MustAddCondition(space.InCondition{Child: "p", Parent: "metric", Values: []string{"minkowski"}})
	return &factory{
		name:  knnName,
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Estimator {
			return &KNN{
				K:       cfg.Int("n_neighbors", 5),
				Weights: cfg.StringValue("weights", "uniform"),
				Metric:  cfg.StringValue("metric", "minkowski"),
				P:       cfg.Int("p", 2),
			}
		},
	}
}

// KNN scores a row by the (optionally distance-weighted) share of positive
// neighbours. K is clamped to the training size.
type KNN struct {
	K       int
	Weights string
	Metric  string
	P       int

	train *mat.Dense
	y     []float64
	cols  int
}

func (m *KNN) Fit(X mat.Matrix, y []float64) error {
	_, p, err := checkTrainingData(knnName, X, y)
	if err != nil {
		return err
	}
	m.train = mat.DenseCopyOf(X)
	m.y = append([]float64(nil), y...)
	m.cols = p
	return nil
}

func (m *KNN) distance(a, b []float64) float64 {
	switch m.Metric {
	case "euclidean":
		return floats.Distance(a, b, 2)
	case "manhattan":
		return floats.Distance(a, b, 1)
	case "chebyshev":
		return floats.Distance(a, b, math.Inf(1))
	default:
		return floats.Distance(a, b, float64(m.P))
	}
}

func (m *KNN) PredictScore(X mat.Matrix) ([]float64, error) {
	n, err := checkPredictInput(knnName, X, m.train != nil, m.cols)
	if err != nil {
		return nil, err
	}
	nTrain := len(m.y)
	k := m.K
	if k > nTrain {
		k = nTrain
	}
	if k < 1 {
		k = 1
	}

	type neighbour struct {
		d float64
		i int
	}
	out := make([]float64, n)
	query := make([]float64, m.cols)
	ref := make([]float64, m.cols)
	nbrs := make([]neighbour, nTrain)
	for q := 0; q < n; q++ {
		mat.Row(query, q, X)
		for i := 0; i < nTrain; i++ {
			mat.Row(ref, i, m.train)
			nbrs[i] = neighbour{d: m.distance(query, ref), i: i}
		}
		sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].d < nbrs[b].d })

		var num, den float64
		exact := false
		for _, nb := range nbrs[:k] {
			w := 1.0
			if m.Weights == "distance" {
				// Exact matches sort first and take all the weight.
				if nb.d == 0 {
					exact = true
				} else if exact {
					continue
				} else {
					w = 1 / nb.d
				}
			}
			num += w * m.y[nb.i]
			den += w
		}
		out[q] = num / den
	}
	return finiteScores(knnName, out)
}
