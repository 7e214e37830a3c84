package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/spf13/cobra"

	"gomodsel/adapters/dataload"
	"gomodsel/adapters/scoring"
	"gomodsel/adapters/suggest"
	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/internal/aggregate"
	"gomodsel/internal/api"
	"gomodsel/internal/config"
	"gomodsel/internal/driver"
	"gomodsel/internal/report"
)

type runFlags struct {
	randomStates string
	listen       string
}

func newRunCmd() *cobra.Command {
	var rf runFlags
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the comparison over every pipeline and random state",
		Long: `Run BBC-CV model selection for every (pipeline, random state) pair.

Settings come from the environment (and .env); flags override them.

Example:
  PREDICTORS=data/x.csv TARGET=data/y.csv gomodsel run --random-states 10 --n-jobs 4 --report results/report.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, loaded, cfg, rf); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			return runComparison(cmd.Context(), loaded, rf.listen, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Data.Predictors, "predictors", "", "Predictors file (.csv or .xlsx)")
	f.StringVar(&cfg.Data.Target, "target", "", "Target file (.csv or .xlsx)")
	f.StringVar(&cfg.Data.TargetColumn, "target-column", "", "Read the target from this predictors column")
	f.StringVar(&cfg.Data.Regex, "feature-regex", "", "Keep only feature columns matching this pattern")
	f.IntVar(&cfg.Run.CV, "cv", 5, "Inner folds, or resamples in bootstrap mode")
	f.IntVar(&cfg.Run.OOB, "oob", 500, "Bias-correction bootstrap resamples")
	f.IntVar(&cfg.Run.MaxEvals, "max-evals", 50, "Optimizer trials per inner fold")
	f.StringVar(&rf.randomStates, "random-states", "1", "Count, comma list or range of random states")
	f.IntVar(&cfg.Run.NJobs, "n-jobs", -1, "Concurrent units; <= 0 uses every CPU")
	f.StringVar(&cfg.Run.Scoring, "scoring", "roc_auc", "Scoring rule")
	f.StringVar(&cfg.Run.Suggester, "suggester", "gp", "Suggestion algorithm (gp, random)")
	f.StringVar(&cfg.Run.InnerMode, "inner-mode", "cv", "Inner resampling (cv, bootstrap)")
	f.StringSliceVar(&cfg.Run.Selectors, "selectors", nil, "Selectors to compare (default all)")
	f.StringSliceVar(&cfg.Run.Estimators, "estimators", nil, "Estimators to compare (default all)")
	f.StringVar(&cfg.Output.PathFinalResults, "output", "results/final_results.csv", "Final results CSV")
	f.StringVar(&cfg.Output.ResultsXLSX, "xlsx", "", "Also write results to this workbook")
	f.StringVar(&cfg.Output.ReportPath, "report", "", "Write a Markdown or HTML report")
	f.StringVar(&rf.listen, "listen", "", "Serve live results and progress on this address while running")
	return cmd
}

// applyRunFlags copies every flag the user set onto the loaded config.
func applyRunFlags(cmd *cobra.Command, dst, src *config.Config, rf runFlags) error {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("predictors", func() { dst.Data.Predictors = src.Data.Predictors })
	set("target", func() { dst.Data.Target = src.Data.Target })
	set("target-column", func() { dst.Data.TargetColumn = src.Data.TargetColumn })
	set("feature-regex", func() { dst.Data.Regex = src.Data.Regex })
	set("cv", func() { dst.Run.CV = src.Run.CV })
	set("oob", func() { dst.Run.OOB = src.Run.OOB })
	set("max-evals", func() { dst.Run.MaxEvals = src.Run.MaxEvals })
	set("n-jobs", func() { dst.Run.NJobs = src.Run.NJobs })
	set("scoring", func() { dst.Run.Scoring = src.Run.Scoring })
	set("suggester", func() { dst.Run.Suggester = src.Run.Suggester })
	set("inner-mode", func() { dst.Run.InnerMode = src.Run.InnerMode })
	set("selectors", func() { dst.Run.Selectors = src.Run.Selectors })
	set("estimators", func() { dst.Run.Estimators = src.Run.Estimators })
	set("output", func() { dst.Output.PathFinalResults = src.Output.PathFinalResults })
	set("xlsx", func() { dst.Output.ResultsXLSX = src.Output.ResultsXLSX })
	set("report", func() { dst.Output.ReportPath = src.Output.ReportPath })
	if cmd.Flags().Changed("random-states") {
		states, err := config.ParseRandomStates(rf.randomStates)
		if err != nil {
			return err
		}
		dst.Run.RandomStates = states
	}
	return nil
}

func runComparison(ctx context.Context, cfg *config.Config, listen string, out io.Writer) error {
	logger := newLogger(cfg, "Run")

	pipes, err := buildPipelines(cfg.Run.Selectors, cfg.Run.Estimators)
	if err != nil {
		return err
	}
	scorer, err := scoring.ByName(cfg.Run.Scoring)
	if err != nil {
		return err
	}
	suggester, err := suggest.ByName(cfg.Run.Suggester)
	if err != nil {
		return err
	}
	if cfg.Data.Predictors == "" {
		return fmt.Errorf("no predictors file: set PREDICTORS or --predictors")
	}
	ds, err := dataload.Load(cfg.Data.Predictors, cfg.Data.Target, dataload.Options{
		IndexColumn:  cfg.Data.IndexColumn,
		Regex:        cfg.Data.Regex,
		Sheet:        cfg.Data.Sheet,
		TargetColumn: cfg.Data.TargetColumn,
	})
	if err != nil {
		return err
	}
	rows, cols := ds.X.Dims()
	logger.Info("loaded %d rows x %d features from %s", rows, cols, cfg.Data.Predictors)

	sinks, closeSinks, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	runID := core.NewRunID()
	if err := sinks.Begin(ctx, runID); err != nil {
		return err
	}
	agg := aggregate.New(runID, cfg.Run.Alpha)

	var hub *api.Hub
	var wg sync.WaitGroup
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if listen != "" {
		hub = api.NewHub(newLogger(cfg, "SSE"))
		srv := api.NewServer(api.ReaderFunc(func(context.Context) (*comparison.ComparisonTable, error) {
			return agg.Table(), nil
		}), cfg.Run.Alpha, hub, newLogger(cfg, "API"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(serveCtx, listen); err != nil {
				logger.Error("results server: %v", err)
			}
		}()
	}

	progress := make(chan driver.Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			status := "ok"
			if p.Failed {
				status = "failed"
			}
			logger.Info("[%d/%d] %s random_state=%d %s", p.Completed, p.Total, p.PipelineID, p.RandomState, status)
			if hub != nil {
				hub.Broadcast(api.NewEvent(p))
			}
		}
	}()

	table, runErr := driver.Run(ctx, pipes, ds.X, ds.Y, driver.Options{
		RandomStates:   cfg.Run.RandomStates,
		CV:             cfg.Run.CV,
		OOB:            cfg.Run.OOB,
		MaxEvals:       cfg.Run.MaxEvals,
		TestSize:       cfg.Run.TestSize,
		InnerMode:      cfg.Run.InnerMode,
		Shuffle:        cfg.Run.Shuffle,
		Balance:        cfg.Run.Balancing,
		CompleteMatrix: cfg.Run.CompleteMatrix,
		MinCoverage:    cfg.Run.MinCoverage,
		Aggregate:      cfg.Run.Aggregate,
		Alpha:          cfg.Run.Alpha,
		ErrorScore:     cfg.Run.ErrorScore,
		NJobs:          cfg.Run.NJobs,
		Scorer:         scorer,
		Suggester:      suggester,
		WritePrelim:    cfg.Run.WritePrelim,
		Sink:           sinks,
		Aggregator:     agg,
		Progress:       progress,
		RunID:          runID,
		Logger:         newLogger(cfg, "Driver"),
	})
	close(progress)
	<-done
	if table == nil {
		return runErr
	}

	// A cancelled run still persists the units that finished.
	summary, err := agg.Finalize(context.WithoutCancel(ctx), sinks)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("write final results: %w", err))
	}
	if cfg.Output.ReportPath != "" {
		if err := report.Write(cfg.Output.ReportPath, table, summary); err != nil {
			return errors.Join(runErr, fmt.Errorf("write report: %w", err))
		}
		logger.Info("report written to %s", cfg.Output.ReportPath)
	}
	printSummary(out, summary)

	stopServe()
	wg.Wait()
	return runErr
}

func printSummary(w io.Writer, summary *comparison.Summary) {
	fmt.Fprintf(w, "run %s\n", summary.RunID)
	for _, p := range summary.Pipelines {
		fmt.Fprintf(w, "%3d  %-48s  corrected=%s  ci=[%s, %s]  outer=%s  failed=%d/%d\n",
			p.Rank, p.PipelineID, fmtScore(p.MeanCorrected), fmtScore(p.CILower), fmtScore(p.CIUpper),
			fmtScore(p.MeanOuter), p.Failed, p.Runs)
	}
}

func fmtScore(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}
