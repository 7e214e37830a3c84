package estimators

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

const svcName = "SVCEstimator"

// NewSVCFactory builds a kernel support vector classifier with balanced class
// weights. gamma only applies to the non-linear kernels, gamma_value only
// when gamma is "value", degree only to poly and coef0 to poly and sigmoid.
func NewSVCFactory() ports.EstimatorFactory {
	s := space.New().MustAdd(
		space.NewLogFloat("C", 1e-3, 1e3, 1),
		space.NewCategorical("kernel", []string{"rbf", "linear", "poly", "sigmoid"}, "rbf"),
		space.NewCategorical("gamma", []string{"auto", "value"}, "auto"),
		space.NewLogFloat("gamma_value", 1e-4, 8, 1),
		space.NewInt("degree", 1, 5, 3),
		space.NewFloat("coef0", 0, 10, 0),
		space.NewInt("max_iter", 100, 5000, 1000),
	)
	s.MustAddCondition(space.InCondition{Child: "gamma", Parent: "kernel", Values: []string{"rbf", "poly", "sigmoid"}})
	s.MustAddCondition(space.InCondition{Child: "gamma_value", Parent: "gamma", Values: []string{"value"}})
	s.MustAddCondition(space.InCondition{Child: "degree", Parent: "kernel", Values: []string{"poly"}})
	s.MustAddCondition(space.InCondition{Child: "coef0", Parent: "kernel", Values: []string{"poly", "sigmoid"}})
	return &factory{
		name:  svcName,
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Estimator {
			m := &SVC{
				C:       cfg.Float("C", 1),
				Kernel:  cfg.StringValue("kernel", "rbf"),
				Degree:  cfg.Int("degree", 3),
				Coef0:   cfg.Float("coef0", 0),
				MaxIter: cfg.Int("max_iter", 1000),
				Seed:    seed,
			}
			if cfg.StringValue("gamma", "auto") == "value" {
				m.Gamma = cfg.Float("gamma_value", 1)
			}
			return m
		},
	}
}

// SVC is a soft-margin support vector classifier trained with sequential
// minimal optimisation on standardised features. Gamma <= 0 means
// 1 / n_features. The positive-class score is the sigmoid of the decision
// function.
type SVC struct {
	C       float64
	Kernel  string
	Gamma   float64
	Degree  int
	Coef0   float64
	MaxIter int
	Seed    int64

	mean, scale []float64
	gamma       float64
	support     [][]float64
	dual        []float64 // alpha_i * y_i of each support vector
	bias        float64
	fitted      bool
}

const (
	svcTol       = 1e-3
	svcMaxPasses = 5
)

func (m *SVC) kernel(a, b []float64) float64 {
	switch m.Kernel {
	case "linear":
		return floats.Dot(a, b)
	case "poly":
		return math.Pow(m.gamma*floats.Dot(a, b)+m.Coef0, float64(m.Degree))
	case "sigmoid":
		return math.Tanh(m.gamma*floats.Dot(a, b) + m.Coef0)
	default:
		d := floats.Distance(a, b, 2)
		return math.Exp(-m.gamma * d * d)
	}
}

func (m *SVC) standardise(X mat.Matrix, n, p int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			rows[i][j] = (X.At(i, j) - m.mean[j]) / m.scale[j]
		}
	}
	return rows
}

func (m *SVC) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkTrainingData(svcName, X, y)
	if err != nil {
		return err
	}
	if m.C <= 0 {
		return core.NewFitError(svcName, errNonPositive("C"))
	}
	if m.Kernel == "poly" && m.Degree < 1 {
		return core.NewFitError(svcName, errNonPositive("degree"))
	}
	m.gamma = m.Gamma
	if m.gamma <= 0 {
		m.gamma = 1 / float64(p)
	}

	m.mean = make([]float64, p)
	m.scale = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.mean[j], m.scale[j] = mean, std
	}
	Z := m.standardise(X, n, p)

	K := make([][]float64, n)
	for i := range K {
		K[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			K[i][j] = m.kernel(Z[i], Z[j])
			K[j][i] = K[i][j]
		}
	}

	// Balanced box constraints: C * n / (2 * n_class).
	signs := make([]float64, n)
	var pos float64
	for i, v := range y {
		signs[i] = -1
		if v > 0.5 {
			signs[i] = 1
			pos++
		}
	}
	box := make([]float64, n)
	for i := range box {
		if signs[i] > 0 {
			box[i] = m.C * float64(n) / (2 * pos)
		} else {
			box[i] = m.C * float64(n) / (2 * (float64(n) - pos))
		}
	}

	alpha := make([]float64, n)
	var b float64
	decision := func(i int) float64 {
		f := b
		for k, a := range alpha {
			if a > 0 {
				f += a * signs[k] * K[k][i]
			}
		}
		return f
	}

	stream := rand.New(rand.NewSource(m.Seed))
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	for iter, passes := 0, 0; passes < svcMaxPasses && iter < maxIter; iter++ {
		changed := 0
		for i := 0; i < n; i++ {
			ei := decision(i) - signs[i]
			if !(signs[i]*ei < -svcTol && alpha[i] < box[i]) && !(signs[i]*ei > svcTol && alpha[i] > 0) {
				continue
			}
			j := stream.Intn(n - 1)
			if j >= i {
				j++
			}
			ej := decision(j) - signs[j]
			ai, aj := alpha[i], alpha[j]

			var lo, hi float64
			if signs[i] != signs[j] {
				lo, hi = math.Max(0, aj-ai), math.Min(box[j], box[i]+aj-ai)
			} else {
				lo, hi = math.Max(0, ai+aj-box[i]), math.Min(box[j], ai+aj)
			}
			if hi-lo < 1e-12 {
				continue
			}
			eta := 2*K[i][j] - K[i][i] - K[j][j]
			if eta >= 0 {
				continue
			}
			alpha[j] = math.Min(hi, math.Max(lo, aj-signs[j]*(ei-ej)/eta))
			if math.Abs(alpha[j]-aj) < 1e-5 {
				alpha[j] = aj
				continue
			}
			alpha[i] = ai + signs[i]*signs[j]*(aj-alpha[j])

			b1 := b - ei - signs[i]*(alpha[i]-ai)*K[i][i] - signs[j]*(alpha[j]-aj)*K[i][j]
			b2 := b - ej - signs[i]*(alpha[i]-ai)*K[i][j] - signs[j]*(alpha[j]-aj)*K[j][j]
			switch {
			case alpha[i] > 0 && alpha[i] < box[i]:
				b = b1
			case alpha[j] > 0 && alpha[j] < box[j]:
				b = b2
			default:
				b = (b1 + b2) / 2
			}
			changed++
		}
		if changed == 0 {
			passes++
		} else {
			passes = 0
		}
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return core.NewNumericalError(svcName, "bias diverged")
		}
	}

	m.support, m.dual = nil, nil
	for i, a := range alpha {
		if a > 0 {
			m.support = append(m.support, Z[i])
			m.dual = append(m.dual, a*signs[i])
		}
	}
	m.bias, m.fitted = b, true
	return nil
}

// DecisionFunction returns the signed margin of each row.
func (m *SVC) DecisionFunction(X mat.Matrix) ([]float64, error) {
	n, err := checkPredictInput(svcName, X, m.fitted, len(m.mean))
	if err != nil {
		return nil, err
	}
	Z := m.standardise(X, n, len(m.mean))
	out := make([]float64, n)
	for q, z := range Z {
		f := m.bias
		for k, sv := range m.support {
			f += m.dual[k] * m.kernel(sv, z)
		}
		out[q] = f
	}
	return out, nil
}

func (m *SVC) PredictScore(X mat.Matrix) ([]float64, error) {
	out, err := m.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	for i, f := range out {
		out[i] = sigmoid(f)
	}
	return finiteScores(svcName, out)
}

// SupportVectors is the number of training rows with a non-zero dual weight.
func (m *SVC) SupportVectors() int { return len(m.support) }
