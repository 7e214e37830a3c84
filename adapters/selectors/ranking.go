package selectors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

// Ranking keeps the NumFeatures columns a FeatureScorer rates highest.
// NumFeatures is clamped to the available columns.
type Ranking struct {
	Scorer      ports.FeatureScorer
	NumFeatures int
	support

	scores []float64
}

func newRanking(component string, scorer ports.FeatureScorer, k int) *Ranking {
	return &Ranking{Scorer: scorer, NumFeatures: k, support: support{component: component}}
}

func (s *Ranking) Fit(X mat.Matrix, y []float64) error {
	_, cols, err := checkFitInput(s.component, X, y)
	if err != nil {
		return err
	}
	scores, err := s.Scorer.Score(X, y)
	if err != nil {
		return err
	}
	if len(scores) != cols {
		return fmt.Errorf("%w: %s returned %d scores for %d features", core.ErrFitFailed, s.Scorer.Name(), len(scores), cols)
	}
	s.scores = scores
	return s.set(cols, topK(scores, s.NumFeatures))
}

// Scores returns the importance of every input column from the last Fit.
func (s *Ranking) Scores() []float64 {
	return append([]float64(nil), s.scores...)
}

// NewFScoreFactory ranks features by the two-class ANOVA F statistic.
func NewFScoreFactory() ports.SelectorFactory {
	s := space.New().MustAdd(space.NewInt("num_features", 1, 50, 10))
	return &factory{
		name:  "FScoreSelection",
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Selector {
			return newRanking("FScoreSelection", ANOVAF{}, cfg.Int("num_features", 10))
		},
	}
}

// ANOVAF scores each column by the between/within class variance ratio.
type ANOVAF struct{}

func (ANOVAF) Name() string { return "anova_f" }

func (a ANOVAF) Score(X mat.Matrix, y []float64) ([]float64, error) {
	f, _, err := a.FTest(X, y)
	return f, err
}

// FTest returns the F statistic and its p-value per column. Constant columns
// score 0 with p-value 1.
func (ANOVAF) FTest(X mat.Matrix, y []float64) (f, p []float64, err error) {
	n, cols := X.Dims()
	var groups [2][]int
	for i, v := range y {
		c := 0
		if v > 0.5 {
			c = 1
		}
		groups[c] = append(groups[c], i)
	}
	if len(groups[0]) < 2 || len(groups[1]) < 2 || n < 3 {
		return nil, nil, core.NewDegenerateError("anova_f", "each class needs at least two rows")
	}

	dist := distuv.F{D1: 1, D2: float64(n - 2)}
	f = make([]float64, cols)
	p = make([]float64, cols)
	col := make([]float64, n)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		grand := stat.Mean(col, nil)
		var between, within float64
		for _, g := range groups {
			vals := make([]float64, len(g))
			for k, i := range g {
				vals[k] = col[i]
			}
			mean := stat.Mean(vals, nil)
			between += float64(len(g)) * (mean - grand) * (mean - grand)
			for _, v := range vals {
				within += (v - mean) * (v - mean)
			}
		}
		within /= float64(n - 2)
		switch {
		case within > 0:
			f[j] = between / within
			p[j] = dist.Survival(f[j])
		case between > 0:
			f[j], p[j] = math.Inf(1), 0
		default:
			f[j], p[j] = 0, 1
		}
	}
	return f, p, nil
}

// NewMutualInformationFactory ranks features by their mutual information with
// the label, estimated on quantile bins.
func NewMutualInformationFactory() ports.SelectorFactory {
	s := space.New().MustAdd(
		space.NewInt("num_features", 1, 50, 10),
		space.NewInt("num_bins", 2, 20, 10),
	)
	return &factory{
		name:  "MutualInformationSelection",
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Selector {
			mi := MutualInformation{Bins: cfg.Int("num_bins", 10)}
			return newRanking("MutualInformationSelection", mi, cfg.Int("num_features", 10))
		},
	}
}

// MutualInformation estimates I(X_j; y) in nats after quantile-binning X_j.
type MutualInformation struct {
	Bins int
}

func (MutualInformation) Name() string { return "mutual_information" }

func (m MutualInformation) Score(X mat.Matrix, y []float64) ([]float64, error) {
	n, cols := X.Dims()
	bins := m.Bins
	if bins < 2 {
		bins = 2
	}
	labels := make([]int, n)
	var labelCount [2]float64
	for i, v := range y {
		if v > 0.5 {
			labels[i] = 1
		}
		labelCount[labels[i]]++
	}
	hy := stat.Entropy([]float64{labelCount[0] / float64(n), labelCount[1] / float64(n)})

	out := make([]float64, cols)
	col := make([]float64, n)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		xb := quantileBins(col, bins)

		joint := make([]float64, 2*bins)
		marg := make([]float64, bins)
		for i, b := range xb {
			joint[2*b+labels[i]]++
			marg[b]++
		}
		for k := range joint {
			joint[k] /= float64(n)
		}
		for k := range marg {
			marg[k] /= float64(n)
		}
		out[j] = math.Max(0, stat.Entropy(marg)+hy-stat.Entropy(joint))
	}
	return out, nil
}

// quantileBins assigns each value the index of the highest quantile threshold
// it reaches.
func quantileBins(data []float64, numBins int) []int {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	bins := make([]int, len(data))
	for i, v := range data {
		bin := 0
		for b := 1; b < numBins; b++ {
			if v >= sorted[(len(sorted)*b)/numBins] {
				bin = b
			} else {
				break
			}
		}
		bins[i] = bin
	}
	return bins
}
