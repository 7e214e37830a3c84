package bbccv

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"

	apperrors "gomodsel/internal/errors"
	"gomodsel/internal/resampling"
	"gomodsel/ports"
)

// Aggregate names for the bias-corrected estimate.
const (
	AggregateMean   = "mean"
	AggregateMedian = "median"
)

// CorrectionOptions tunes the bootstrap over the prediction matrix.
type CorrectionOptions struct {
	Resamples   int
	// MinCoverage is the fraction of in-bag draws a column must have
	// predictions for to compete in a resample.
	MinCoverage float64
	Aggregate   string
	Alpha       float64
}

// Resample is the diagnostic record of one bootstrap draw. InBag and
// OutOfBag hold matrix row positions.
type Resample struct {
	InBag    []int
	OutOfBag []int
	Winner   int
	Score    float64
	Skipped  bool
	Reason   string
}

// Correction is the result of the bootstrap bias correction.
type Correction struct {
	Estimate  float64
	CILower   float64
	CIUpper   float64
	// Scores are the out-of-bag scores of the contributing resamples.
	Scores    []float64
	Skipped   int
	Resamples []Resample
}

// CorrectBias draws Resamples bootstrap samples of the matrix rows. In each,
// the configuration scoring best on the in-bag rows wins (lowest column on
// ties) and is scored on the out-of-bag rows. Resamples with no eligible
// column or no scorable out-of-bag rows are skipped and counted.
func CorrectBias(m *Matrix, y []float64, scorer ports.Scorer, opts CorrectionOptions, stream *rand.Rand) (*Correction, error) {
	if opts.Resamples < 1 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("bootstrap resamples must be >= 1, got %d", opts.Resamples))
	}
	n := len(m.Rows)
	out := &Correction{Estimate: math.NaN(), CILower: math.NaN(), CIUpper: math.NaN()}
	if n < 2 || m.Cols() == 0 {
		out.Skipped = opts.Resamples
		return out, nil
	}

	inScores := make([]float64, m.Cols())
	for b := 0; b < opts.Resamples; b++ {
		inBag, oob := resampling.Bootstrap(n, stream)
		rs := Resample{InBag: inBag, OutOfBag: oob, Winner: -1, Score: math.NaN()}
		if err := assertDisjoint(inBag, oob); err != nil {
			return nil, err
		}

		for c := range inScores {
			inScores[c] = math.NaN()
			s, used, err := m.scoreColumn(c, inBag, y, scorer)
			if err != nil || float64(used) < opts.MinCoverage*float64(len(inBag)) || used == 0 {
				continue
			}
			inScores[c] = s
		}
		rs.Winner = best(inScores)

		switch {
		case rs.Winner < 0:
			rs.Skipped, rs.Reason = true, "no configuration with sufficient coverage"
		case len(oob) == 0:
			rs.Skipped, rs.Reason = true, "empty out-of-bag set"
		default:
			s, used, err := m.scoreColumn(rs.Winner, oob, y, scorer)
			switch {
			case err != nil:
				rs.Skipped, rs.Reason = true, err.Error()
			case used == 0 || math.IsNaN(s):
				rs.Skipped, rs.Reason = true, "winner has no out-of-bag predictions"
			default:
				rs.Score = s
			}
		}
		if rs.Skipped {
			out.Skipped++
		} else {
			out.Scores = append(out.Scores, rs.Score)
		}
		out.Resamples = append(out.Resamples, rs)
	}

	if len(out.Scores) == 0 {
		return out, nil
	}
	var err error
	if opts.Aggregate == AggregateMedian {
		out.Estimate, err = stats.Median(out.Scores)
	} else {
		out.Estimate, err = stats.Mean(out.Scores)
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate resample scores: %w", err)
	}
	out.CILower, out.CIUpper = percentileInterval(out.Scores, opts.Alpha)
	return out, nil
}

// percentileInterval is the nearest-rank [alpha/2, 1-alpha/2] interval.
func percentileInterval(scores []float64, alpha float64) (float64, float64) {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	lo, err := stats.PercentileNearestRank(scores, 100*alpha/2)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	hi, err := stats.PercentileNearestRank(scores, 100*(1-alpha/2))
	if err != nil {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}

func assertDisjoint(inBag, oob []int) error {
	drawn := make(map[int]bool, len(inBag))
	for _, i := range inBag {
		drawn[i] = true
	}
	for _, i := range oob {
		if drawn[i] {
			return apperrors.InternalError(fmt.Sprintf("bootstrap row %d is both in-bag and out-of-bag", i))
		}
	}
	return nil
}
