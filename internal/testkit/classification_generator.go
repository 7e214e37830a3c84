package testkit

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/dataset"
)

// ClassificationGeneratorConfig configures the synthetic binary classification generator
type ClassificationGeneratorConfig struct {
	Samples       int     `json:"samples"`
	Features      int     `json:"features"`
	Informative   int     `json:"informative"`    // leading columns shifted by the class
	Separation    float64 `json:"separation"`     // mean shift of informative columns
	PositiveShare float64 `json:"positive_share"` // fraction of label-1 rows
	Seed          int64   `json:"seed"`
}

// DefaultClassificationConfig returns a small, clearly separable problem
func DefaultClassificationConfig() ClassificationGeneratorConfig {
	return ClassificationGeneratorConfig{
		Samples:       60,
		Features:      6,
		Informative:   2,
		Separation:    2.0,
		PositiveShare: 0.5,
		Seed:          42,
	}
}

// NoiseConfig returns a problem whose features carry no information about the label
func NoiseConfig(samples, features int, seed int64) ClassificationGeneratorConfig {
	return ClassificationGeneratorConfig{
		Samples:       samples,
		Features:      features,
		Informative:   0,
		PositiveShare: 0.5,
		Seed:          seed,
	}
}

// ClassificationGenerator draws Gaussian features around class-dependent means
type ClassificationGenerator struct {
	config ClassificationGeneratorConfig
	rng    *rand.Rand
}

// NewClassificationGenerator creates a new generator
func NewClassificationGenerator(config ClassificationGeneratorConfig) *ClassificationGenerator {
	return &ClassificationGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate produces a dataset with exactly round(Samples*PositiveShare) positives,
// at least one of each class.
func (g *ClassificationGenerator) Generate() (*dataset.Dataset, error) {
	n, p := g.config.Samples, g.config.Features
	if n < 2 || p < 1 {
		return nil, fmt.Errorf("generator needs at least 2 samples and 1 feature, got %dx%d", n, p)
	}
	if g.config.Informative > p {
		return nil, fmt.Errorf("informative columns %d exceed features %d", g.config.Informative, p)
	}

	nPos := int(float64(n)*g.config.PositiveShare + 0.5)
	if nPos < 1 {
		nPos = 1
	}
	if nPos > n-1 {
		nPos = n - 1
	}
	y := make([]float64, n)
	for i := 0; i < nPos; i++ {
		y[i] = 1
	}
	g.rng.Shuffle(n, func(i, j int) { y[i], y[j] = y[j], y[i] })

	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			v := g.rng.NormFloat64()
			if j < g.config.Informative && y[i] == 1 {
				v += g.config.Separation
			}
			X.Set(i, j, v)
		}
	}

	names := make([]string, p)
	for j := range names {
		names[j] = fmt.Sprintf("f%02d", j)
	}
	index := make([]string, n)
	for i := range index {
		index[i] = fmt.Sprintf("s%03d", i)
	}
	return &dataset.Dataset{X: X, Y: y, FeatureNames: names, Index: index}, nil
}

// MustGenerate is Generate for test fixtures
func MustGenerate(config ClassificationGeneratorConfig) *dataset.Dataset {
	ds, err := NewClassificationGenerator(config).Generate()
	if err != nil {
		panic(err)
	}
	return ds
}
