// Package sink persists comparison tables and summaries.
package sink

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/domain/space"
)

// ResultColumns is the header of every tabular results file.
var ResultColumns = []string{
	"run_id", "pipeline_id", "random_state", "best_config",
	"inner_score", "corrected_score", "ci_lower", "ci_upper", "outer_score",
	"failed", "reason",
	"num_configs", "num_trials", "failed_trials", "skipped_resamples", "duration_ms",
}

// SummaryColumns is the header of the per-pipeline summary.
var SummaryColumns = []string{
	"rank", "pipeline_id", "runs", "failed",
	"mean_corrected", "std_corrected", "median_corrected", "ci_lower", "ci_upper",
	"mean_inner", "mean_outer", "optimism",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func outcomeRecord(o comparison.SelectionOutcome) []string {
	return []string{
		o.RunID.String(),
		o.PipelineID,
		strconv.FormatInt(o.RandomState, 10),
		o.ConfigKey(),
		formatFloat(o.InnerScore),
		formatFloat(o.CorrectedScore),
		formatFloat(o.CILower),
		formatFloat(o.CIUpper),
		formatFloat(o.OuterScore),
		strconv.FormatBool(o.Failed),
		o.Reason,
		strconv.Itoa(o.NumConfigs),
		strconv.Itoa(o.NumTrials),
		strconv.Itoa(o.FailedTrials),
		strconv.Itoa(o.SkippedResamples),
		strconv.FormatInt(o.Duration.Milliseconds(), 10),
	}
}

func summaryRecord(p comparison.PipelineSummary) []string {
	return []string{
		strconv.Itoa(p.Rank),
		p.PipelineID,
		strconv.Itoa(p.Runs),
		strconv.Itoa(p.Failed),
		formatFloat(p.MeanCorrected),
		formatFloat(p.StdCorrected),
		formatFloat(p.MedianCorrected),
		formatFloat(p.CILower),
		formatFloat(p.CIUpper),
		formatFloat(p.MeanInner),
		formatFloat(p.MeanOuter),
		formatFloat(p.Optimism),
	}
}

// parseOutcome reverses outcomeRecord. Configurations come back through
// space.ParseKey and are fit for reporting only.
func parseOutcome(rec []string) (comparison.SelectionOutcome, error) {
	if len(rec) != len(ResultColumns) {
		return comparison.SelectionOutcome{}, fmt.Errorf("expected %d fields, got %d", len(ResultColumns), len(rec))
	}
	p := &fieldParser{rec: rec}
	o := comparison.SelectionOutcome{
		RunID:            core.RunID(rec[0]),
		PipelineID:       rec[1],
		RandomState:      p.int64(2),
		InnerScore:       p.float(4),
		CorrectedScore:   p.float(5),
		CILower:          p.float(6),
		CIUpper:          p.float(7),
		OuterScore:       p.float(8),
		Failed:           p.bool(9),
		Reason:           rec[10],
		NumConfigs:       int(p.int64(11)),
		NumTrials:        int(p.int64(12)),
		FailedTrials:     int(p.int64(13)),
		SkippedResamples: int(p.int64(14)),
		Duration:         time.Duration(p.int64(15)) * time.Millisecond,
	}
	if p.err != nil {
		return o, p.err
	}
	if rec[3] != "" {
		cfg, err := space.ParseKey(rec[3])
		if err != nil {
			return o, err
		}
		o.BestConfig = cfg
	}
	return o, nil
}

// fieldParser keeps the first conversion error.
type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) fail(i int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: %w", ResultColumns[i], err)
	}
}

func (p *fieldParser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.rec[i], 64)
	if err != nil {
		p.fail(i, err)
		return math.NaN()
	}
	return v
}

func (p *fieldParser) int64(i int) int64 {
	v, err := strconv.ParseInt(p.rec[i], 10, 64)
	if err != nil {
		p.fail(i, err)
	}
	return v
}

func (p *fieldParser) bool(i int) bool {
	v, err := strconv.ParseBool(p.rec[i])
	if err != nil {
		p.fail(i, err)
	}
	return v
}
