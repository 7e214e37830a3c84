// Package optimizer runs the bounded hyperparameter search for one pipeline
// on one train/validation split.
package optimizer

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
	"gomodsel/domain/dataset"
	"gomodsel/domain/space"
	"gomodsel/internal"
	apperrors "gomodsel/internal/errors"
	"gomodsel/internal/pipeline"
	"gomodsel/internal/resampling"
	"gomodsel/internal/rng"
	"gomodsel/ports"
)

// Request describes one search.
type Request struct {
	Pipeline  *pipeline.Pipeline
	Suggester ports.SuggesterFactory
	Scorer    ports.Scorer

	XTrain  mat.Matrix
	YTrain  []float64
	XVal    mat.Matrix
	YVal    []float64
	// ValRows are the caller's row ids for XVal, copied onto every trial.
	ValRows []int
	Fold    int

	MaxEvals   int
	ErrorScore float64
	Seed       int64
	Balance    bool

	Logger *internal.Logger
}

// Trial is one evaluated configuration.
type Trial struct {
	Index  int
	Fold   int
	Config space.Configuration
	Score  float64
	Failed bool
	Reason string
	// Cached marks a repeat of an earlier configuration in the same search.
	Cached bool

	Rows        []int
	Predictions []float64
}

// Result is the outcome of a search. NoCandidate is set when every trial failed.
type Result struct {
	PipelineID   string
	Best         space.Configuration
	BestScore    float64
	BestTrial    int
	Trials       []Trial
	FailedTrials int
	NoCandidate  bool
}

// validate checks what every evaluation needs: a pipeline, a scorer and
// well-formed splits.
func (r *Request) validate() error {
	if r.Pipeline == nil || r.Scorer == nil {
		return apperrors.InvalidInput("optimizer request needs a pipeline and a scorer")
	}
	if err := dataset.CheckShape(r.XTrain, r.YTrain); err != nil {
		return apperrors.InputShape("training split: %v", err)
	}
	if err := dataset.CheckShape(r.XVal, r.YVal); err != nil {
		return apperrors.InputShape("validation split: %v", err)
	}
	if r.ValRows != nil && len(r.ValRows) != len(r.YVal) {
		return apperrors.InputShape("%d validation row ids for %d rows", len(r.ValRows), len(r.YVal))
	}
	return nil
}

// Optimize runs up to MaxEvals sequential trials. Trial failures from the
// bounded set in core.IsTrialFailure record ErrorScore and the search goes
// on; any other error aborts it.
func Optimize(ctx context.Context, req Request) (*Result, error) {
	if req.Suggester == nil {
		return nil, apperrors.InvalidInput("optimizer request needs a suggester")
	}
	if req.MaxEvals < 1 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("max_evals must be >= 1, got %d", req.MaxEvals))
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	logger := req.Logger
	if logger == nil {
		logger = internal.DefaultLogger.With("Optimizer")
	}
	pipeID := req.Pipeline.ID()

	suggester, err := req.Suggester.New(req.Pipeline.Space(), rng.Derive(req.Seed, rng.StageSuggest, pipeID))
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: create suggester: %w", pipeID, err)
	}

	Xtr, ytr := req.trainingData()

	res := &Result{PipelineID: pipeID, BestScore: math.NaN(), BestTrial: -1}
	history := make([]ports.Observation, 0, req.MaxEvals)
	seen := make(map[string]int)

	for i := 0; i < req.MaxEvals; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg, err := suggester.Suggest(history)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: suggest trial %d: %w", pipeID, i, err)
		}
		key := cfg.Key()

		var trial Trial
		if prev, ok := seen[key]; ok {
			trial = res.Trials[prev]
			trial.Cached = true
		} else {
			trial, err = evaluate(req, Xtr, ytr, cfg)
			if err != nil {
				return nil, err
			}
			seen[key] = i
			if trial.Failed {
				logger.Warn("pipeline=%s fold=%d seed=%d config=%s trial failed: %s", pipeID, req.Fold, req.Seed, cfg, trial.Reason)
			} else {
				logger.Trace("pipeline=%s fold=%d config=%s score=%.4f", pipeID, req.Fold, cfg, trial.Score)
			}
		}
		trial.Index = i
		trial.Fold = req.Fold
		res.Trials = append(res.Trials, trial)
		history = append(history, ports.Observation{Config: trial.Config, Score: trial.Score, Failed: trial.Failed})

		if trial.Failed {
			res.FailedTrials++
			continue
		}
		if res.BestTrial < 0 || trial.Score > res.BestScore {
			res.Best, res.BestScore, res.BestTrial = trial.Config, trial.Score, i
		}
	}

	res.NoCandidate = res.BestTrial < 0
	return res, nil
}

// trainingData returns the training split, oversampled when Balance is set.
func (r *Request) trainingData() (mat.Matrix, []float64) {
	if !r.Balance {
		return r.XTrain, r.YTrain
	}
	n := len(r.YTrain)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	stream := rng.Stream(r.Seed, rng.StageBalance, r.Pipeline.ID())
	balanced := resampling.Balance(idx, r.YTrain, stream)
	if len(balanced) == n {
		return r.XTrain, r.YTrain
	}
	return dataset.Rows(r.XTrain, balanced), dataset.Targets(r.YTrain, balanced)
}

// Evaluate fits and scores a single given configuration under the same rules
// as a search trial. MaxEvals and Suggester are ignored.
func Evaluate(ctx context.Context, req Request, cfg space.Configuration) (Trial, error) {
	if err := ctx.Err(); err != nil {
		return Trial{}, err
	}
	if err := req.validate(); err != nil {
		return Trial{}, err
	}
	Xtr, ytr := req.trainingData()
	trial, err := evaluate(req, Xtr, ytr, cfg)
	trial.Fold = req.Fold
	return trial, err
}

// evaluate fits one fresh pipeline instance. The returned error is non-nil
// only for failures outside the recoverable set.
func evaluate(req Request, Xtr mat.Matrix, ytr []float64, cfg space.Configuration) (Trial, error) {
	trial := Trial{Config: cfg.Clone(), Rows: req.ValRows}
	fail := func(err error) (Trial, error) {
		if !core.IsTrialFailure(err) {
			return Trial{}, fmt.Errorf("pipeline %s config %s: %w", req.Pipeline.ID(), cfg, err)
		}
		trial.Failed, trial.Score, trial.Reason = true, req.ErrorScore, err.Error()
		trial.Predictions = nil
		return trial, nil
	}

	seed := rng.Derive(req.Seed, rng.StageTrial, req.Pipeline.ID(), cfg.Key())
	inst, err := req.Pipeline.Instantiate(cfg, seed)
	if err != nil {
		return fail(err)
	}
	if err := inst.Fit(Xtr, ytr); err != nil {
		return fail(err)
	}
	pred, err := inst.PredictScore(req.XVal)
	if err != nil {
		return fail(err)
	}
	score, err := req.Scorer.Score(req.YVal, pred)
	if err != nil {
		return fail(err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fail(core.NewNumericalError(req.Scorer.Name(), "non-finite score"))
	}
	trial.Score, trial.Predictions = score, pred
	return trial, nil
}
