package estimators

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/core"
	"gomodsel/domain/dataset"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

const logRegName = "LogRegEstimator"

// NewLogRegFactory builds L1/L2 regularised logistic regression with balanced
// class weights, fit by proximal gradient descent on standardised features.
func NewLogRegFactory() ports.EstimatorFactory {
	s := space.New().MustAdd(
		space.NewLogFloat("C", 1e-3, 1e3, 1),
		space.NewCategorical("penalty", []string{"l2", "l1"}, "l2"),
		space.NewInt("max_iter", 50, 1000, 300),
	)
	return &factory{
		name:  logRegName,
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Estimator {
			return &LogReg{
				C:       cfg.Float("C", 1),
				Penalty: cfg.StringValue("penalty", "l2"),
				MaxIter: cfg.Int("max_iter", 300),
			}
		},
	}
}

// LogReg is a binary logistic regression.
type LogReg struct {
	C       float64
	Penalty string
	MaxIter int

	mean, scale []float64
	coef        []float64
	intercept   float64
	fitted      bool
}

func (m *LogReg) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkTrainingData(logRegName, X, y)
	if err != nil {
		return err
	}
	if m.C <= 0 {
		return core.NewFitError(logRegName, errNonPositive("C"))
	}

	m.mean = make([]float64, p)
	m.scale = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		mean, std := stat.MeanStdDev(col, nil)
		m.mean[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.scale[j] = std
	}
	Z := mat.NewDense(n, p, nil)
	Z.Apply(func(i, j int, v float64) float64 {
		return (v - m.mean[j]) / m.scale[j]
	}, X)

	// Balanced weights: n / (2 * n_class).
	var pos float64
	for _, v := range y {
		if v > 0.5 {
			pos++
		}
	}
	wPos, wNeg := float64(n)/(2*pos), float64(n)/(2*(float64(n)-pos))
	weights := make([]float64, n)
	for i, v := range y {
		if v > 0.5 {
			weights[i] = wPos
		} else {
			weights[i] = wNeg
		}
	}

	lambda := 1 / (m.C * float64(n))
	lipschitz := 0.25 * math.Max(wPos, wNeg) * float64(p+1)
	if m.Penalty == "l2" {
		lipschitz += lambda
	}
	step := 1 / lipschitz

	beta := make([]float64, p)
	var b0 float64
	grad := make([]float64, p)
	row := make([]float64, p)
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}
	for iter := 0; iter < maxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		var g0 float64
		for i := 0; i < n; i++ {
			mat.Row(row, i, Z)
			r := weights[i] * (sigmoid(floats.Dot(row, beta)+b0) - y[i]) / float64(n)
			floats.AddScaled(grad, r, row)
			g0 += r
		}
		if m.Penalty == "l2" {
			floats.AddScaled(grad, lambda, beta)
		}

		var change float64
		for j := range beta {
			next := beta[j] - step*grad[j]
			if m.Penalty == "l1" {
				next = softThreshold(next, step*lambda)
			}
			change = math.Max(change, math.Abs(next-beta[j]))
			beta[j] = next
		}
		b0 -= step * g0
		change = math.Max(change, math.Abs(step*g0))

		if math.IsNaN(b0) || !dataset.AllFinite(beta) {
			return core.NewNumericalError(logRegName, "coefficients diverged")
		}
		if change < 1e-7 {
			break
		}
	}
	m.coef, m.intercept, m.fitted = beta, b0, true
	return nil
}

func (m *LogReg) PredictScore(X mat.Matrix) ([]float64, error) {
	n, err := checkPredictInput(logRegName, X, m.fitted, len(m.coef))
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		z := m.intercept
		for j, c := range m.coef {
			z += c * (X.At(i, j) - m.mean[j]) / m.scale[j]
		}
		out[i] = sigmoid(z)
	}
	return finiteScores(logRegName, out)
}

// Coefficients returns the fitted weights on the standardised features.
func (m *LogReg) Coefficients() []float64 {
	return append([]float64(nil), m.coef...)
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

type errNonPositive string

func (e errNonPositive) Error() string { return string(e) + " must be positive" }
