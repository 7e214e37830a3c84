// Package aggregate collects selection outcomes across repetitions and turns
// them into the comparison table and the ranked per-pipeline summary.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/internal"
	apperrors "gomodsel/internal/errors"
	"gomodsel/ports"
)

// Aggregator is safe for concurrent use. Rows are keyed by
// (pipeline id, random state); adding a key again replaces the row.
type Aggregator struct {
	runID  core.RunID
	alpha  float64
	logger *internal.Logger

	mu   sync.RWMutex
	rows map[comparison.Key]comparison.SelectionOutcome
}

// New creates an empty aggregator for a run. alpha sets the level of the
// Student-t interval on the mean corrected score; values outside (0, 1)
// mean 0.05.
func New(runID core.RunID, alpha float64) *Aggregator {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	return &Aggregator{
		runID:  runID,
		alpha:  alpha,
		logger: internal.DefaultLogger.With("Aggregator"),
		rows:   make(map[comparison.Key]comparison.SelectionOutcome),
	}
}

// RunID returns the run the rows are stamped with.
func (a *Aggregator) RunID() core.RunID { return a.runID }

// Add stores an outcome, replacing any row with the same key.
func (a *Aggregator) Add(o comparison.SelectionOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.add(o)
}

func (a *Aggregator) add(o comparison.SelectionOutcome) {
	o.RunID = a.runID
	a.rows[o.Key()] = o
}

// Record adds an outcome and, when sink is non-nil, writes it as a
// preliminary row. Writes are serialised with other Record calls.
func (a *Aggregator) Record(ctx context.Context, o comparison.SelectionOutcome, sink ports.ResultSink) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.add(o)
	if sink == nil {
		return nil
	}
	if err := sink.WritePreliminary(ctx, a.rows[o.Key()]); err != nil {
		return apperrors.Wrapf(err, "write preliminary row %s/%d", o.PipelineID, o.RandomState)
	}
	return nil
}

// Merge adds every row of other. Keys present in both with differing
// contents are rejected and nothing is merged.
func (a *Aggregator) Merge(other *Aggregator) error {
	if other == nil || other == a {
		return nil
	}
	incoming := other.Table().Rows

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range incoming {
		if prev, ok := a.rows[o.Key()]; ok && !sameRow(prev, o) {
			return apperrors.InvalidInput(fmt.Sprintf("merge: conflicting rows for pipeline %s random state %d", o.PipelineID, o.RandomState))
		}
	}
	for _, o := range incoming {
		a.add(o)
	}
	return nil
}

func sameRow(a, b comparison.SelectionOutcome) bool {
	eq := func(x, y float64) bool { return x == y || (math.IsNaN(x) && math.IsNaN(y)) }
	return a.Failed == b.Failed &&
		a.ConfigKey() == b.ConfigKey() &&
		eq(a.InnerScore, b.InnerScore) &&
		eq(a.CorrectedScore, b.CorrectedScore) &&
		eq(a.OuterScore, b.OuterScore)
}

// Len is the number of rows.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rows)
}

// Table returns a snapshot of the rows sorted by (pipeline id, random state).
func (a *Aggregator) Table() *comparison.ComparisonTable {
	a.mu.RLock()
	rows := make([]comparison.SelectionOutcome, 0, len(a.rows))
	for _, o := range a.rows {
		rows = append(rows, o)
	}
	a.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Key().Less(rows[j].Key()) })
	return &comparison.ComparisonTable{RunID: a.runID, Rows: rows}
}

// Summarize ranks pipelines on the current rows.
func (a *Aggregator) Summarize() *comparison.Summary {
	return Summarize(a.Table(), a.alpha)
}

// Finalize writes the table and its summary to sink and returns the summary.
func (a *Aggregator) Finalize(ctx context.Context, sink ports.ResultSink) (*comparison.Summary, error) {
	table := a.Table()
	summary := Summarize(table, a.alpha)
	if sink == nil {
		return summary, nil
	}
	if err := sink.WriteFinal(ctx, table, summary); err != nil {
		return summary, apperrors.Wrap(err, "write final results")
	}
	a.logger.Info("run %s: wrote %d rows for %d pipelines (%d failed)", a.runID, table.Len(), len(summary.Pipelines), table.Failed())
	return summary, nil
}

// Summarize builds the per-pipeline statistics of a sorted table. Failed
// rows are counted but excluded from every statistic. Pipelines are ranked
// by mean corrected score, ties by pipeline id; pipelines without a
// successful row rank last.
func Summarize(table *comparison.ComparisonTable, alpha float64) *comparison.Summary {
	summary := &comparison.Summary{}
	if table == nil {
		return summary
	}
	summary.RunID = table.RunID

	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	groups := make(map[string][]comparison.SelectionOutcome)
	for _, r := range table.Rows {
		groups[r.PipelineID] = append(groups[r.PipelineID], r)
	}
	for id, rows := range groups {
		summary.Pipelines = append(summary.Pipelines, summarizePipeline(id, rows, alpha))
	}

	sort.Slice(summary.Pipelines, func(i, j int) bool {
		a, b := summary.Pipelines[i], summary.Pipelines[j]
		if a.HasScores() != b.HasScores() {
			return a.HasScores()
		}
		if a.HasScores() && a.MeanCorrected != b.MeanCorrected {
			return a.MeanCorrected > b.MeanCorrected
		}
		return a.PipelineID < b.PipelineID
	})
	for i := range summary.Pipelines {
		summary.Pipelines[i].Rank = i + 1
	}
	return summary
}

func summarizePipeline(id string, rows []comparison.SelectionOutcome, alpha float64) comparison.PipelineSummary {
	s := comparison.PipelineSummary{
		PipelineID:      id,
		Runs:            len(rows),
		MeanCorrected:   math.NaN(),
		StdCorrected:    math.NaN(),
		MedianCorrected: math.NaN(),
		CILower:         math.NaN(),
		CIUpper:         math.NaN(),
		MeanInner:       math.NaN(),
		MeanOuter:       math.NaN(),
		Optimism:        math.NaN(),
	}
	var corrected, inner, outer, gaps []float64
	for _, r := range rows {
		if r.Failed {
			s.Failed++
			continue
		}
		if finite(r.CorrectedScore) {
			corrected = append(corrected, r.CorrectedScore)
		}
		if finite(r.InnerScore) {
			inner = append(inner, r.InnerScore)
		}
		if finite(r.OuterScore) {
			outer = append(outer, r.OuterScore)
		}
		if finite(r.InnerScore) && finite(r.CorrectedScore) {
			gaps = append(gaps, r.InnerScore-r.CorrectedScore)
		}
	}
	// Optimism pairs inner and corrected scores of the same row.
	if len(gaps) > 0 {
		s.Optimism = stat.Mean(gaps, nil)
	}
	if len(inner) > 0 {
		s.MeanInner = stat.Mean(inner, nil)
	}
	if len(outer) > 0 {
		s.MeanOuter = stat.Mean(outer, nil)
	}
	if len(corrected) == 0 {
		return s
	}

	n := float64(len(corrected))
	s.MeanCorrected = stat.Mean(corrected, nil)
	s.MedianCorrected, _ = stats.Median(corrected)
	s.StdCorrected, s.CILower, s.CIUpper = 0, s.MeanCorrected, s.MeanCorrected
	if len(corrected) > 1 {
		s.StdCorrected = stat.StdDev(corrected, nil)
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}.Quantile(1 - alpha/2)
		half := t * s.StdCorrected / math.Sqrt(n)
		s.CILower, s.CIUpper = s.MeanCorrected-half, s.MeanCorrected+half
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
