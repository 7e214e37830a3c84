package sink

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/domain/space"
	apperrors "gomodsel/internal/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS selection_outcomes (
	run_id            TEXT NOT NULL,
	pipeline_id       TEXT NOT NULL,
	random_state      BIGINT NOT NULL,
	best_config       TEXT NOT NULL DEFAULT '',
	inner_score       DOUBLE PRECISION,
	corrected_score   DOUBLE PRECISION,
	ci_lower          DOUBLE PRECISION,
	ci_upper          DOUBLE PRECISION,
	outer_score       DOUBLE PRECISION,
	failed            BOOLEAN NOT NULL DEFAULT FALSE,
	reason            TEXT NOT NULL DEFAULT '',
	num_configs       INTEGER NOT NULL DEFAULT 0,
	num_trials        INTEGER NOT NULL DEFAULT 0,
	failed_trials     INTEGER NOT NULL DEFAULT 0,
	skipped_resamples INTEGER NOT NULL DEFAULT 0,
	duration_ms       BIGINT NOT NULL DEFAULT 0,
	preliminary       BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at        TIMESTAMP NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, pipeline_id, random_state)
);
CREATE TABLE IF NOT EXISTS pipeline_summaries (
	run_id           TEXT NOT NULL,
	pipeline_id      TEXT NOT NULL,
	rank             INTEGER NOT NULL,
	runs             INTEGER NOT NULL,
	failed           INTEGER NOT NULL,
	mean_corrected   DOUBLE PRECISION,
	std_corrected    DOUBLE PRECISION,
	median_corrected DOUBLE PRECISION,
	ci_lower         DOUBLE PRECISION,
	ci_upper         DOUBLE PRECISION,
	mean_inner       DOUBLE PRECISION,
	mean_outer       DOUBLE PRECISION,
	optimism         DOUBLE PRECISION,
	PRIMARY KEY (run_id, pipeline_id)
);`

const upsertOutcome = `
INSERT INTO selection_outcomes (
	run_id, pipeline_id, random_state, best_config,
	inner_score, corrected_score, ci_lower, ci_upper, outer_score,
	failed, reason, num_configs, num_trials, failed_trials, skipped_resamples, duration_ms,
	preliminary, updated_at
) VALUES (
	:run_id, :pipeline_id, :random_state, :best_config,
	:inner_score, :corrected_score, :ci_lower, :ci_upper, :outer_score,
	:failed, :reason, :num_configs, :num_trials, :failed_trials, :skipped_resamples, :duration_ms,
	:preliminary, NOW()
)
ON CONFLICT (run_id, pipeline_id, random_state) DO UPDATE SET
	best_config = EXCLUDED.best_config,
	inner_score = EXCLUDED.inner_score,
	corrected_score = EXCLUDED.corrected_score,
	ci_lower = EXCLUDED.ci_lower,
	ci_upper = EXCLUDED.ci_upper,
	outer_score = EXCLUDED.outer_score,
	failed = EXCLUDED.failed,
	reason = EXCLUDED.reason,
	num_configs = EXCLUDED.num_configs,
	num_trials = EXCLUDED.num_trials,
	failed_trials = EXCLUDED.failed_trials,
	skipped_resamples = EXCLUDED.skipped_resamples,
	duration_ms = EXCLUDED.duration_ms,
	preliminary = EXCLUDED.preliminary,
	updated_at = NOW()`

const insertSummary = `
INSERT INTO pipeline_summaries (
	run_id, pipeline_id, rank, runs, failed,
	mean_corrected, std_corrected, median_corrected, ci_lower, ci_upper,
	mean_inner, mean_outer, optimism
) VALUES (
	:run_id, :pipeline_id, :rank, :runs, :failed,
	:mean_corrected, :std_corrected, :median_corrected, :ci_lower, :ci_upper,
	:mean_inner, :mean_outer, :optimism
)`

// outcomeRow is the selection_outcomes row of one outcome.
type outcomeRow struct {
	RunID            string  `db:"run_id"`
	PipelineID       string  `db:"pipeline_id"`
	RandomState      int64   `db:"random_state"`
	BestConfig       string  `db:"best_config"`
	InnerScore       float64 `db:"inner_score"`
	CorrectedScore   float64 `db:"corrected_score"`
	CILower          float64 `db:"ci_lower"`
	CIUpper          float64 `db:"ci_upper"`
	OuterScore       float64 `db:"outer_score"`
	Failed           bool    `db:"failed"`
	Reason           string  `db:"reason"`
	NumConfigs       int     `db:"num_configs"`
	NumTrials        int     `db:"num_trials"`
	FailedTrials     int     `db:"failed_trials"`
	SkippedResamples int     `db:"skipped_resamples"`
	DurationMS       int64   `db:"duration_ms"`
	Preliminary      bool    `db:"preliminary"`
}

func toOutcomeRow(o comparison.SelectionOutcome, preliminary bool) outcomeRow {
	return outcomeRow{
		RunID:            o.RunID.String(),
		PipelineID:       o.PipelineID,
		RandomState:      o.RandomState,
		BestConfig:       o.ConfigKey(),
		InnerScore:       o.InnerScore,
		CorrectedScore:   o.CorrectedScore,
		CILower:          o.CILower,
		CIUpper:          o.CIUpper,
		OuterScore:       o.OuterScore,
		Failed:           o.Failed,
		Reason:           o.Reason,
		NumConfigs:       o.NumConfigs,
		NumTrials:        o.NumTrials,
		FailedTrials:     o.FailedTrials,
		SkippedResamples: o.SkippedResamples,
		DurationMS:       o.Duration.Milliseconds(),
		Preliminary:      preliminary,
	}
}

func (r outcomeRow) outcome() (comparison.SelectionOutcome, error) {
	o := comparison.SelectionOutcome{
		RunID:            core.RunID(r.RunID),
		PipelineID:       r.PipelineID,
		RandomState:      r.RandomState,
		InnerScore:       r.InnerScore,
		CorrectedScore:   r.CorrectedScore,
		CILower:          r.CILower,
		CIUpper:          r.CIUpper,
		OuterScore:       r.OuterScore,
		Failed:           r.Failed,
		Reason:           r.Reason,
		NumConfigs:       r.NumConfigs,
		NumTrials:        r.NumTrials,
		FailedTrials:     r.FailedTrials,
		SkippedResamples: r.SkippedResamples,
		Duration:         time.Duration(r.DurationMS) * time.Millisecond,
	}
	if r.BestConfig != "" {
		cfg, err := space.ParseKey(r.BestConfig)
		if err != nil {
			return o, err
		}
		o.BestConfig = cfg
	}
	return o, nil
}

type summaryRow struct {
	RunID           string  `db:"run_id"`
	PipelineID      string  `db:"pipeline_id"`
	Rank            int     `db:"rank"`
	Runs            int     `db:"runs"`
	Failed          int     `db:"failed"`
	MeanCorrected   float64 `db:"mean_corrected"`
	StdCorrected    float64 `db:"std_corrected"`
	MedianCorrected float64 `db:"median_corrected"`
	CILower         float64 `db:"ci_lower"`
	CIUpper         float64 `db:"ci_upper"`
	MeanInner       float64 `db:"mean_inner"`
	MeanOuter       float64 `db:"mean_outer"`
	Optimism        float64 `db:"optimism"`
}

// PostgresSink upserts outcomes keyed by (run id, pipeline id, random
// state) and replaces the run's summary on WriteFinal.
type PostgresSink struct {
	db *sqlx.DB
	// RunID selects the run ReadTable returns; empty means the most recent.
	RunID core.RunID
}

// OpenPostgres connects with the lib/pq driver.
func OpenPostgres(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeDatabaseError, err)
	}
	return db, nil
}

// NewPostgresSink wraps an open connection.
func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the result tables when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return apperrors.SinkError("postgres", err)
	}
	return nil
}

func (s *PostgresSink) WritePreliminary(ctx context.Context, o comparison.SelectionOutcome) error {
	if _, err := s.db.NamedExecContext(ctx, upsertOutcome, toOutcomeRow(o, true)); err != nil {
		return apperrors.SinkError("postgres", err)
	}
	return nil
}

// WriteFinal upserts every row and replaces the summary in one transaction.
func (s *PostgresSink) WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.SinkError("postgres", err)
	}
	defer tx.Rollback()

	for _, o := range table.Rows {
		if _, err := tx.NamedExecContext(ctx, upsertOutcome, toOutcomeRow(o, false)); err != nil {
			return apperrors.SinkError("postgres", err)
		}
	}
	if summary != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_summaries WHERE run_id = $1`, summary.RunID.String()); err != nil {
			return apperrors.SinkError("postgres", err)
		}
		for _, p := range summary.Pipelines {
			row := summaryRow{
				RunID: summary.RunID.String(), PipelineID: p.PipelineID, Rank: p.Rank, Runs: p.Runs, Failed: p.Failed,
				MeanCorrected: p.MeanCorrected, StdCorrected: p.StdCorrected, MedianCorrected: p.MedianCorrected,
				CILower: p.CILower, CIUpper: p.CIUpper,
				MeanInner: p.MeanInner, MeanOuter: p.MeanOuter, Optimism: p.Optimism,
			}
			if _, err := tx.NamedExecContext(ctx, insertSummary, row); err != nil {
				return apperrors.SinkError("postgres", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.SinkError("postgres", err)
	}
	return nil
}

// ReadTable loads the rows of RunID, or of the most recently updated run.
func (s *PostgresSink) ReadTable(ctx context.Context) (*comparison.ComparisonTable, error) {
	runID := s.RunID.String()
	if runID == "" {
		err := s.db.GetContext(ctx, &runID, `
			SELECT run_id FROM selection_outcomes
			ORDER BY updated_at DESC LIMIT 1`)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		if err != nil {
			return nil, apperrors.SinkError("postgres", err)
		}
	}

	var rows []outcomeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, pipeline_id, random_state, best_config,
			inner_score, corrected_score, ci_lower, ci_upper, outer_score,
			failed, reason, num_configs, num_trials, failed_trials, skipped_resamples, duration_ms, preliminary
		FROM selection_outcomes
		WHERE run_id = $1
		ORDER BY pipeline_id, random_state`, runID)
	if err != nil {
		return nil, apperrors.SinkError("postgres", err)
	}
	if len(rows) == 0 {
		return nil, core.ErrNotFound
	}
	table := &comparison.ComparisonTable{RunID: core.RunID(runID)}
	for _, r := range rows {
		o, err := r.outcome()
		if err != nil {
			return nil, apperrors.SinkError("postgres", err)
		}
		table.Rows = append(table.Rows, o)
	}
	sort.Slice(table.Rows, func(i, j int) bool { return table.Rows[i].Key().Less(table.Rows[j].Key()) })
	return table, nil
}
