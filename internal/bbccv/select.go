// Package bbccv implements bootstrap bias-corrected cross-validation: an
// inner hyperparameter search per fold, then a bootstrap over the pooled
// out-of-fold predictions that scores each resample's winner on rows it was
// not selected on.
package bbccv

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/comparison"
	"gomodsel/domain/dataset"
	"gomodsel/internal"
	apperrors "gomodsel/internal/errors"
	"gomodsel/internal/optimizer"
	"gomodsel/internal/pipeline"
	"gomodsel/internal/resampling"
	"gomodsel/internal/rng"
	"gomodsel/ports"
)

// Inner resampling modes.
const (
	InnerCV        = "cv"
	InnerBootstrap = "bootstrap"
)

// Request configures one selection for one pipeline on one training set.
type Request struct {
	Pipeline  *pipeline.Pipeline
	Suggester ports.SuggesterFactory
	Scorer    ports.Scorer

	X mat.Matrix
	Y []float64

	// CV is the inner fold count, or the inner resample count in bootstrap mode.
	CV        int
	OOB       int
	MaxEvals  int
	InnerMode string
	Shuffle   bool
	Balance   bool
	// CompleteMatrix refits every configuration on the folds whose search
	// did not propose it, so all columns cover all rows.
	CompleteMatrix bool

	MinCoverage float64
	Aggregate   string
	Alpha       float64
	ErrorScore  float64
	RandomState int64

	Logger *internal.Logger
}

func (r *Request) validate() error {
	if r.Pipeline == nil || r.Suggester == nil || r.Scorer == nil {
		return apperrors.InvalidInput("selection request needs a pipeline, a suggester and a scorer")
	}
	if err := dataset.CheckShape(r.X, r.Y); err != nil {
		return apperrors.InputShape("%v", err)
	}
	if err := dataset.CheckBinary(r.Y); err != nil {
		return apperrors.InputShape("%v", err)
	}
	switch {
	case r.InnerMode != InnerCV && r.InnerMode != InnerBootstrap:
		return apperrors.InvalidInput(fmt.Sprintf("inner mode must be %q or %q, got %q", InnerCV, InnerBootstrap, r.InnerMode))
	case r.InnerMode == InnerCV && r.CV < 2:
		return apperrors.InvalidInput(fmt.Sprintf("CV must be >= 2, got %d", r.CV))
	case r.InnerMode == InnerBootstrap && r.CV < 1:
		return apperrors.InvalidInput(fmt.Sprintf("inner bootstrap resamples must be >= 1, got %d", r.CV))
	case r.OOB < 1:
		return apperrors.InvalidInput(fmt.Sprintf("OOB must be >= 1, got %d", r.OOB))
	case r.MaxEvals < 1:
		return apperrors.InvalidInput(fmt.Sprintf("MAX_EVALS must be >= 1, got %d", r.MaxEvals))
	case r.MinCoverage < 0 || r.MinCoverage > 1:
		return apperrors.InvalidInput(fmt.Sprintf("min coverage must be in [0, 1], got %g", r.MinCoverage))
	}
	return nil
}

// Diagnostics carries the ephemeral artifacts of one selection.
type Diagnostics struct {
	Folds      []resampling.Fold
	Searches   []*optimizer.Result
	Matrix     *Matrix
	Pooled     []float64
	Correction *Correction
}

// Select runs the inner searches and the bias correction. It returns an
// error only for structurally invalid requests or an aborted search;
// a pipeline that never produced a usable configuration yields a failed
// outcome.
func Select(ctx context.Context, req Request) (*comparison.SelectionOutcome, error) {
	out, _, err := SelectWithDiagnostics(ctx, req)
	return out, err
}

// SelectWithDiagnostics is Select that also returns the intermediate artifacts.
func SelectWithDiagnostics(ctx context.Context, req Request) (*comparison.SelectionOutcome, *Diagnostics, error) {
	if req.InnerMode == "" {
		req.InnerMode = InnerCV
	}
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	logger := req.Logger
	if logger == nil {
		logger = internal.DefaultLogger.With("BBCCV")
	}
	start := time.Now()
	pipeID := req.Pipeline.ID()
	n := len(req.Y)

	// Folds depend on the random state only so every pipeline sees the same splits.
	splitStream := rng.Stream(req.RandomState, rng.StageInnerSplit)
	var folds []resampling.Fold
	var err error
	if req.InnerMode == InnerBootstrap {
		folds, err = resampling.BootstrapFolds(n, req.CV, splitStream)
	} else {
		folds, err = resampling.StratifiedKFold(req.Y, req.CV, req.Shuffle, splitStream)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline %s: inner split: %w", pipeID, err)
	}

	diag := &Diagnostics{Folds: folds}
	outcome := &comparison.SelectionOutcome{
		PipelineID:  pipeID,
		RandomState: req.RandomState,
		OuterScore:  math.NaN(),
	}

	requests := make([]optimizer.Request, len(folds))
	for f, fold := range folds {
		requests[f] = optimizer.Request{
			Pipeline:   req.Pipeline,
			Suggester:  req.Suggester,
			Scorer:     req.Scorer,
			XTrain:     dataset.Rows(req.X, fold.Train),
			YTrain:     dataset.Targets(req.Y, fold.Train),
			XVal:       dataset.Rows(req.X, fold.Test),
			YVal:       dataset.Targets(req.Y, fold.Test),
			ValRows:    fold.Test,
			Fold:       f,
			MaxEvals:   req.MaxEvals,
			ErrorScore: req.ErrorScore,
			Seed:       rng.Derive(req.RandomState, rng.FoldKey(rng.StageTrial, f)),
			Balance:    req.Balance,
			Logger:     logger,
		}
		res, err := optimizer.Optimize(ctx, requests[f])
		if err != nil {
			return nil, nil, err
		}
		diag.Searches = append(diag.Searches, res)
		outcome.NumTrials += len(res.Trials)
		outcome.FailedTrials += res.FailedTrials
	}

	matrix := newMatrix(heldOutRows(folds, n))
	for _, res := range diag.Searches {
		for _, t := range res.Trials {
			matrix.record(t)
		}
	}
	if req.CompleteMatrix {
		if err := complete(ctx, matrix, diag.Searches, requests, logger); err != nil {
			return nil, nil, err
		}
	}
	diag.Matrix = matrix
	outcome.NumConfigs = matrix.Cols()

	diag.Pooled = matrix.pooled(req.Y, req.Scorer)
	chosen := best(diag.Pooled)
	if chosen < 0 {
		logger.Warn("pipeline=%s random_state=%d: no configuration produced a usable score (%d/%d trials failed)",
			pipeID, req.RandomState, outcome.FailedTrials, outcome.NumTrials)
		fail(outcome, req.ErrorScore, "no candidate configuration: every trial failed")
		outcome.Duration = time.Since(start)
		return outcome, diag, nil
	}
	outcome.BestConfig = matrix.Configs[chosen].Clone()
	outcome.InnerScore = diag.Pooled[chosen]

	corr, err := CorrectBias(matrix, req.Y, req.Scorer, CorrectionOptions{
		Resamples:   req.OOB,
		MinCoverage: req.MinCoverage,
		Aggregate:   req.Aggregate,
		Alpha:       req.Alpha,
	}, rng.Stream(req.RandomState, rng.StageBootstrap, pipeID))
	if err != nil {
		return nil, nil, err
	}
	diag.Correction = corr
	outcome.SkippedResamples = corr.Skipped
	outcome.ResampleScores = corr.Scores
	if len(corr.Scores) == 0 {
		logger.Warn("pipeline=%s random_state=%d: all %d bootstrap resamples skipped", pipeID, req.RandomState, req.OOB)
		fail(outcome, req.ErrorScore, fmt.Sprintf("all %d bootstrap resamples skipped: insufficient coverage", req.OOB))
		outcome.Duration = time.Since(start)
		return outcome, diag, nil
	}
	outcome.CorrectedScore = corr.Estimate
	outcome.CILower, outcome.CIUpper = corr.CILower, corr.CIUpper
	outcome.Duration = time.Since(start)

	logger.Debug("pipeline=%s random_state=%d inner=%.4f corrected=%.4f configs=%d skipped=%d",
		pipeID, req.RandomState, outcome.InnerScore, outcome.CorrectedScore, outcome.NumConfigs, outcome.SkippedResamples)
	return outcome, diag, nil
}

// complete evaluates every known configuration on the folds whose search did
// not try it. Failures there leave the entries absent.
func complete(ctx context.Context, m *Matrix, searches []*optimizer.Result, requests []optimizer.Request, logger *internal.Logger) error {
	for f, res := range searches {
		tried := make(map[string]bool, len(res.Trials))
		for _, t := range res.Trials {
			tried[t.Config.Key()] = true
		}
		for c := 0; c < m.Cols(); c++ {
			cfg := m.Configs[c]
			if tried[cfg.Key()] {
				continue
			}
			t, err := optimizer.Evaluate(ctx, requests[f], cfg)
			if err != nil {
				return err
			}
			if t.Failed {
				logger.Debug("pipeline=%s fold=%d config=%s refit failed: %s", requests[f].Pipeline.ID(), f, cfg, t.Reason)
				continue
			}
			m.record(t)
		}
	}
	return nil
}

// heldOutRows lists every row held out by at least one fold, ascending.
func heldOutRows(folds []resampling.Fold, n int) []int {
	held := make([]bool, n)
	for _, f := range folds {
		for _, i := range f.Test {
			held[i] = true
		}
	}
	var rows []int
	for i, h := range held {
		if h {
			rows = append(rows, i)
		}
	}
	return rows
}

func fail(o *comparison.SelectionOutcome, errorScore float64, reason string) {
	o.Failed = true
	o.Reason = reason
	o.InnerScore = errorScore
	o.CorrectedScore = errorScore
	o.CILower = errorScore
	o.CIUpper = errorScore
	o.OuterScore = errorScore
}

