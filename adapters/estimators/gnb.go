package estimators

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

const gnbName = "GNBEstimator"

// NewGNBFactory builds Gaussian naive Bayes. It has no hyperparameters.
func NewGNBFactory() ports.EstimatorFactory {
	return &factory{
		name:  gnbName,
		space: space.New(),
		build: func(space.Configuration, int64) ports.Estimator { return &GNB{} },
	}
}

// GNB is Gaussian naive Bayes over two classes.
type GNB struct {
	prior [2]float64
	mean  [2][]float64
	vari  [2][]float64
	cols  int
	fit   bool
}

func (m *GNB) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkTrainingData(gnbName, X, y)
	if err != nil {
		return err
	}
	var members [2][]int
	for i, v := range y {
		c := 0
		if v > 0.5 {
			c = 1
		}
		members[c] = append(members[c], i)
	}

	// Variance smoothing as a fraction of the largest feature variance.
	col := make([]float64, n)
	var maxVar float64
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		maxVar = math.Max(maxVar, stat.Variance(col, nil))
	}
	eps := 1e-9 * maxVar
	if eps == 0 {
		eps = 1e-9
	}

	for c := 0; c < 2; c++ {
		m.prior[c] = float64(len(members[c])) / float64(n)
		m.mean[c] = make([]float64, p)
		m.vari[c] = make([]float64, p)
		vals := make([]float64, len(members[c]))
		for j := 0; j < p; j++ {
			for k, i := range members[c] {
				vals[k] = X.At(i, j)
			}
			mean, v := stat.PopMeanVariance(vals, nil)
			m.mean[c][j] = mean
			m.vari[c][j] = v + eps
		}
	}
	m.cols, m.fit = p, true
	return nil
}

func (m *GNB) PredictScore(X mat.Matrix) ([]float64, error) {
	n, err := checkPredictInput(gnbName, X, m.fit, m.cols)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	var logp [2]float64
	for i := 0; i < n; i++ {
		for c := 0; c < 2; c++ {
			l := math.Log(m.prior[c])
			for j := 0; j < m.cols; j++ {
				d := X.At(i, j) - m.mean[c][j]
				l -= 0.5*math.Log(2*math.Pi*m.vari[c][j]) + d*d/(2*m.vari[c][j])
			}
			logp[c] = l
		}
		out[i] = math.Exp(logp[1] - floats.LogSumExp(logp[:]))
	}
	return finiteScores(gnbName, out)
}
