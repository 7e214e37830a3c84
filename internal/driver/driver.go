// Package driver runs BBC-CV selection for every (pipeline, random state)
// pair on a bounded worker pool and collects the outcomes.
package driver

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"gomodsel/adapters/scoring"
	"gomodsel/adapters/suggest"
	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/domain/dataset"
	"gomodsel/internal"
	"gomodsel/internal/aggregate"
	"gomodsel/internal/bbccv"
	apperrors "gomodsel/internal/errors"
	"gomodsel/internal/pipeline"
	"gomodsel/internal/resampling"
	"gomodsel/internal/rng"
	"gomodsel/ports"
)

// Options configures a run.
type Options struct {
	RandomStates []int64
	CV           int
	OOB          int
	MaxEvals     int
	TestSize     float64
	InnerMode    string
	Shuffle      bool
	Balance      bool

	CompleteMatrix bool
	MinCoverage    float64
	Aggregate      string
	Alpha          float64
	ErrorScore     float64

	// NJobs bounds concurrent units; <= 0 means GOMAXPROCS.
	NJobs int

	Scorer    ports.Scorer
	Suggester ports.SuggesterFactory

	// WritePrelim sends each finished outcome to Sink as it completes.
	WritePrelim bool
	Sink        ports.ResultSink

	// Aggregator receives the outcomes; a fresh one is created when nil.
	Aggregator *aggregate.Aggregator
	Progress   chan<- Progress
	RunID      core.RunID
	Logger     *internal.Logger
}

// DefaultOptions mirrors the usual command-line defaults.
func DefaultOptions() Options {
	return Options{
		RandomStates:   []int64{0},
		CV:             5,
		OOB:            1000,
		MaxEvals:       50,
		TestSize:       0.2,
		InnerMode:      bbccv.InnerCV,
		Shuffle:        true,
		CompleteMatrix: true,
		MinCoverage:    0.5,
		Aggregate:      bbccv.AggregateMean,
		Alpha:          0.05,
		ErrorScore:     math.NaN(),
		Scorer:         scoring.ROCAUC(),
		Suggester:      suggest.NewGPFactory(suggest.DefaultGPConfig()),
	}
}

// Progress is sent after each unit finishes. Sends never block; updates
// are dropped when the receiver is not ready.
type Progress struct {
	Completed   int
	Total       int
	PipelineID  string
	RandomState int64
	Failed      bool
}

type unit struct {
	pipeline    *pipeline.Pipeline
	randomState int64
}

func (o *Options) validate(pipelines []*pipeline.Pipeline) error {
	if len(pipelines) == 0 {
		return apperrors.InvalidInput("no pipelines to evaluate")
	}
	if len(o.RandomStates) == 0 {
		return apperrors.InvalidInput("no random states given")
	}
	if o.Scorer == nil || o.Suggester == nil {
		return apperrors.InvalidInput("run needs a scorer and a suggester")
	}
	if o.TestSize <= 0 || o.TestSize >= 1 {
		return apperrors.InvalidInput(fmt.Sprintf("test size must be in (0, 1), got %g", o.TestSize))
	}
	if o.InnerMode == bbccv.InnerBootstrap {
		if o.CV < 1 {
			return apperrors.InvalidInput(fmt.Sprintf("CV must be >= 1, got %d", o.CV))
		}
	} else if o.CV < 2 {
		return apperrors.InvalidInput(fmt.Sprintf("CV must be >= 2, got %d", o.CV))
	}
	if o.OOB < 1 || o.MaxEvals < 1 {
		return apperrors.InvalidInput(fmt.Sprintf("OOB and MAX_EVALS must be >= 1, got %d and %d", o.OOB, o.MaxEvals))
	}
	seen := make(map[string]bool, len(pipelines))
	for _, p := range pipelines {
		if p == nil {
			return apperrors.InvalidInput("nil pipeline")
		}
		if seen[p.ID()] {
			return apperrors.ConfigurationConflict("pipeline %s listed twice", p.ID())
		}
		seen[p.ID()] = true
	}
	return nil
}

// Run evaluates every pipeline under every random state. Structural
// problems are returned before any unit starts. A failing unit becomes a
// failed row and its siblings continue. On cancellation Run stops
// scheduling, keeps the rows already recorded and returns them with
// ctx.Err().
func Run(ctx context.Context, pipelines []*pipeline.Pipeline, X mat.Matrix, y []float64, opts Options) (*comparison.ComparisonTable, error) {
	if err := dataset.CheckShape(X, y); err != nil {
		return nil, apperrors.InputShape("%v", err)
	}
	if err := dataset.CheckBinary(y); err != nil {
		return nil, apperrors.InputShape("%v", err)
	}
	if err := opts.validate(pipelines); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger.With("Driver")
	}
	if opts.RunID.String() == "" {
		opts.RunID = core.NewRunID()
	}
	agg := opts.Aggregator
	if agg == nil {
		agg = aggregate.New(opts.RunID, opts.Alpha)
	}
	var sink ports.ResultSink
	if opts.WritePrelim {
		sink = opts.Sink
	}
	jobs := opts.NJobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	units := make([]unit, 0, len(pipelines)*len(opts.RandomStates))
	for _, p := range pipelines {
		for _, rs := range opts.RandomStates {
			units = append(units, unit{pipeline: p, randomState: rs})
		}
	}
	logger.Info("run %s: %d pipelines x %d random states on %d workers (fingerprint %s)",
		agg.RunID(), len(pipelines), len(opts.RandomStates), jobs, opts.fingerprint(pipelines).Short())

	var completed atomic.Int64
	var g errgroup.Group
	g.SetLimit(jobs)
	for _, u := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, ok := runUnit(ctx, u, X, y, opts, logger)
			if !ok {
				return nil
			}
			if err := agg.Record(context.WithoutCancel(ctx), out, sink); err != nil {
				logger.Warn("pipeline=%s random_state=%d: %v", out.PipelineID, out.RandomState, err)
			}
			report(opts.Progress, Progress{
				Completed:   int(completed.Add(1)),
				Total:       len(units),
				PipelineID:  out.PipelineID,
				RandomState: out.RandomState,
				Failed:      out.Failed,
			})
			return nil
		})
	}
	_ = g.Wait()

	table := agg.Table()
	if err := ctx.Err(); err != nil {
		logger.Warn("run %s cancelled after %d of %d units", agg.RunID(), completed.Load(), len(units))
		return table, err
	}
	logger.Info("run %s: %d rows, %d failed", agg.RunID(), table.Len(), table.Failed())
	return table, nil
}

// fingerprint hashes every setting that determines the rows of a run.
func (o Options) fingerprint(pipelines []*pipeline.Pipeline) core.Hash {
	ids := make([]string, len(pipelines))
	for i, p := range pipelines {
		ids[i] = p.ID()
	}
	scorer, suggester := "", ""
	if o.Scorer != nil {
		scorer = o.Scorer.Name()
	}
	if o.Suggester != nil {
		suggester = o.Suggester.Name()
	}
	return core.ComputeRunFingerprint(ids, o.RandomStates, map[string]interface{}{
		"cv":              o.CV,
		"oob":             o.OOB,
		"max_evals":       o.MaxEvals,
		"test_size":       o.TestSize,
		"inner_mode":      o.InnerMode,
		"shuffle":         o.Shuffle,
		"balance":         o.Balance,
		"complete_matrix": o.CompleteMatrix,
		"min_coverage":    o.MinCoverage,
		"aggregate":       o.Aggregate,
		"error_score":     o.ErrorScore,
		"scorer":          scorer,
		"suggester":       suggester,
	})
}

func report(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

// runUnit evaluates one (pipeline, random state). ok is false when the unit
// was interrupted by cancellation and must not be recorded.
func runUnit(ctx context.Context, u unit, X mat.Matrix, y []float64, opts Options, logger *internal.Logger) (out comparison.SelectionOutcome, ok bool) {
	pipeID := u.pipeline.ID()
	start := time.Now()
	failed := func(reason string) comparison.SelectionOutcome {
		o := comparison.Failure("", pipeID, u.randomState, opts.ErrorScore, reason)
		o.Duration = time.Since(start)
		return o
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline=%s random_state=%d: recovered panic: %v\n%s", pipeID, u.randomState, r, debug.Stack())
			out, ok = failed(fmt.Sprintf("panic: %v", r)), true
		}
	}()

	// The outer split depends on the random state only so pipelines are
	// compared on the same held-out rows.
	split, err := resampling.StratifiedHoldout(y, opts.TestSize, rng.Stream(u.randomState, rng.StageOuterSplit))
	if err != nil {
		logger.Warn("pipeline=%s random_state=%d: outer split: %v", pipeID, u.randomState, err)
		return failed(fmt.Sprintf("outer split: %v", err)), true
	}
	Xtr, ytr := dataset.Rows(X, split.Train), dataset.Targets(y, split.Train)

	sel, err := bbccv.Select(ctx, bbccv.Request{
		Pipeline:       u.pipeline,
		Suggester:      opts.Suggester,
		Scorer:         opts.Scorer,
		X:              Xtr,
		Y:              ytr,
		CV:             opts.CV,
		OOB:            opts.OOB,
		MaxEvals:       opts.MaxEvals,
		InnerMode:      opts.InnerMode,
		Shuffle:        opts.Shuffle,
		Balance:        opts.Balance,
		CompleteMatrix: opts.CompleteMatrix,
		MinCoverage:    opts.MinCoverage,
		Aggregate:      opts.Aggregate,
		Alpha:          opts.Alpha,
		ErrorScore:     opts.ErrorScore,
		RandomState:    u.randomState,
		Logger:         logger,
	})
	if err != nil {
		if ctx.Err() != nil {
			return comparison.SelectionOutcome{}, false
		}
		logger.Warn("pipeline=%s random_state=%d: selection failed: %v", pipeID, u.randomState, err)
		return failed(err.Error()), true
	}
	if sel.Failed {
		sel.Duration = time.Since(start)
		return *sel, true
	}

	sel.OuterScore, err = refit(u, sel, Xtr, ytr, dataset.Rows(X, split.Test), dataset.Targets(y, split.Test), opts)
	if err != nil {
		if !core.IsTrialFailure(err) {
			logger.Warn("pipeline=%s random_state=%d config=%s: refit failed: %v", pipeID, u.randomState, sel.BestConfig, err)
			return failed(fmt.Sprintf("refit: %v", err)), true
		}
		logger.Warn("pipeline=%s random_state=%d config=%s: outer refit failed: %v", pipeID, u.randomState, sel.BestConfig, err)
		sel.OuterScore = opts.ErrorScore
		sel.Reason = fmt.Sprintf("outer refit: %v", err)
	}
	sel.Duration = time.Since(start)
	logger.Info("pipeline=%s random_state=%d config=%s inner=%.4f corrected=%.4f outer=%.4f",
		pipeID, u.randomState, sel.BestConfig, sel.InnerScore, sel.CorrectedScore, sel.OuterScore)
	return *sel, true
}

// refit trains the selected configuration on the whole outer training part
// and scores it on the held-out part.
func refit(u unit, sel *comparison.SelectionOutcome, Xtr mat.Matrix, ytr []float64, Xte mat.Matrix, yte []float64, opts Options) (float64, error) {
	pipeID := u.pipeline.ID()
	if opts.Balance {
		idx := make([]int, len(ytr))
		for i := range idx {
			idx[i] = i
		}
		balanced := resampling.Balance(idx, ytr, rng.Stream(u.randomState, rng.StageBalance, rng.StageRefit, pipeID))
		Xtr, ytr = dataset.Rows(Xtr, balanced), dataset.Targets(ytr, balanced)
	}
	inst, err := u.pipeline.Instantiate(sel.BestConfig, rng.Derive(u.randomState, rng.StageRefit, pipeID))
	if err != nil {
		return 0, err
	}
	if err := inst.Fit(Xtr, ytr); err != nil {
		return 0, err
	}
	pred, err := inst.PredictScore(Xte)
	if err != nil {
		return 0, err
	}
	score, err := opts.Scorer.Score(yte, pred)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, core.NewNumericalError(opts.Scorer.Name(), "non-finite outer score")
	}
	return score, nil
}
