package suggest

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

// GPConfig tunes Gaussian-process Bayesian optimisation.
type GPConfig struct {
	Acquisition    string
	Params         AcquisitionParams
	LengthScale    float64 // RBF width on the normalised space
	Noise          float64 // diagonal jitter on the standardised losses
	InitialSamples int     // random suggestions before the surrogate is used
	Candidates     int     // random candidates scored per suggestion
}

// DefaultGPConfig returns EI with a short random warm-up.
func DefaultGPConfig() GPConfig {
	return GPConfig{
		Acquisition:    "ei",
		Params:         AcquisitionParams{Beta: 2, Xi: 0.01},
		LengthScale:    0.3,
		Noise:          1e-4,
		InitialSamples: 3,
		Candidates:     256,
	}
}

type gpFactory struct {
	config GPConfig
}

// NewGPFactory builds GP suggesters sharing one configuration.
func NewGPFactory(config GPConfig) ports.SuggesterFactory {
	return &gpFactory{config: config}
}

func (f *gpFactory) Name() string { return "gp-" + f.config.Acquisition }

func (f *gpFactory) New(s *space.ConfigurationSpace, seed int64) (ports.Suggester, error) {
	acq, err := AcquisitionByName(f.config.Acquisition)
	if err != nil {
		return nil, err
	}
	return &GP{
		config:      f.config,
		acquisition: acq,
		space:       s,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// GP fits an RBF Gaussian process to past losses and suggests the random
// candidate with the best acquisition value. It falls back to random
// sampling while history is short or the kernel matrix is singular.
type GP struct {
	config      GPConfig
	acquisition Acquisition
	space       *space.ConfigurationSpace
	rng         *rand.Rand
}

func (g *GP) Suggest(history []ports.Observation) (space.Configuration, error) {
	// Empty spaces have exactly one configuration.
	if g.space.Len() == 0 {
		return g.space.Default(), nil
	}
	cfgs, y := losses(history)
	if len(cfgs) < g.config.InitialSamples || len(cfgs) == 0 {
		return g.space.Sample(g.rng), nil
	}

	X := make([][]float64, len(cfgs))
	for i, c := range cfgs {
		X[i] = g.space.Vector(c)
	}
	model, ok := fitGP(X, y, g.config.LengthScale, g.config.Noise)

	// Candidates are drawn even when the model failed so the stream stays aligned.
	n := g.config.Candidates
	if n < 1 {
		n = 1
	}
	candidates := make([]space.Configuration, n)
	for i := range candidates {
		candidates[i] = g.space.Sample(g.rng)
	}
	if !ok {
		return candidates[0], nil
	}

	params := g.config.Params
	params.BestSoFar = model.standardise(floats.Min(y))
	best, bestValue := 0, math.Inf(-1)
	for i, c := range candidates {
		mean, variance := model.predict(g.space.Vector(c))
		if v := g.acquisition(mean, variance, params); v > bestValue {
			best, bestValue = i, v
		}
	}
	return candidates[best], nil
}

type gpModel struct {
	X           [][]float64
	alpha       *mat.VecDense
	chol        mat.Cholesky
	lengthScale float64
	yMean, yStd float64
}

func fitGP(X [][]float64, y []float64, lengthScale, noise float64) (*gpModel, bool) {
	n := len(X)
	mean, std := stat.MeanStdDev(y, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	m := &gpModel{X: X, lengthScale: lengthScale, yMean: mean, yStd: std}

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k := m.kernel(X[i], X[j])
			if i == j {
				k += noise
			}
			K.SetSym(i, j, k)
		}
	}
	if ok := m.chol.Factorize(K); !ok {
		return nil, false
	}

	ys := mat.NewVecDense(n, nil)
	for i, v := range y {
		ys.SetVec(i, m.standardise(v))
	}
	m.alpha = mat.NewVecDense(n, nil)
	if err := m.chol.SolveVecTo(m.alpha, ys); err != nil {
		return nil, false
	}
	return m, true
}

func (m *gpModel) standardise(v float64) float64 {
	return (v - m.yMean) / m.yStd
}

func (m *gpModel) kernel(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return math.Exp(-d * d / (2 * m.lengthScale * m.lengthScale))
}

// predict returns the standardised posterior mean and variance at x.
func (m *gpModel) predict(x []float64) (mean, variance float64) {
	n := len(m.X)
	k := mat.NewVecDense(n, nil)
	for i := range m.X {
		k.SetVec(i, m.kernel(x, m.X[i]))
	}
	mean = mat.Dot(k, m.alpha)

	v := mat.NewVecDense(n, nil)
	if err := m.chol.SolveVecTo(v, k); err != nil {
		return mean, 1
	}
	variance = math.Max(1e-12, 1-mat.Dot(k, v))
	return mean, variance
}
