package api

import (
	"math"

	"gomodsel/domain/comparison"
	"gomodsel/domain/space"
)

// Scores that are NaN or infinite are rendered as JSON null.

type outcomeView struct {
	PipelineID       string              `json:"pipeline_id"`
	RandomState      int64               `json:"random_state"`
	BestConfig       space.Configuration `json:"best_config"`
	InnerScore       *float64            `json:"inner_score"`
	CorrectedScore   *float64            `json:"corrected_score"`
	CILower          *float64            `json:"ci_lower"`
	CIUpper          *float64            `json:"ci_upper"`
	OuterScore       *float64            `json:"outer_score"`
	Failed           bool                `json:"failed"`
	Reason           string              `json:"reason,omitempty"`
	NumConfigs       int                 `json:"num_configs"`
	NumTrials        int                 `json:"num_trials"`
	FailedTrials     int                 `json:"failed_trials"`
	SkippedResamples int                 `json:"skipped_resamples"`
	DurationSeconds  float64             `json:"duration_seconds"`
}

type tableView struct {
	RunID  string        `json:"run_id"`
	Rows   []outcomeView `json:"rows"`
	Failed int           `json:"failed"`
}

type pipelineView struct {
	Rank            int      `json:"rank"`
	PipelineID      string   `json:"pipeline_id"`
	Runs            int      `json:"runs"`
	Failed          int      `json:"failed"`
	MeanCorrected   *float64 `json:"mean_corrected"`
	StdCorrected    *float64 `json:"std_corrected"`
	MedianCorrected *float64 `json:"median_corrected"`
	CILower         *float64 `json:"ci_lower"`
	CIUpper         *float64 `json:"ci_upper"`
	MeanInner       *float64 `json:"mean_inner"`
	MeanOuter       *float64 `json:"mean_outer"`
	Optimism        *float64 `json:"optimism"`
}

type summaryView struct {
	RunID     string         `json:"run_id"`
	Best      string         `json:"best,omitempty"`
	Pipelines []pipelineView `json:"pipelines"`
}

type pipelineDetailView struct {
	Summary pipelineView  `json:"summary"`
	Rows    []outcomeView `json:"rows"`
}

func score(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newOutcomeView(o comparison.SelectionOutcome) outcomeView {
	return outcomeView{
		PipelineID:       o.PipelineID,
		RandomState:      o.RandomState,
		BestConfig:       o.BestConfig,
		InnerScore:       score(o.InnerScore),
		CorrectedScore:   score(o.CorrectedScore),
		CILower:          score(o.CILower),
		CIUpper:          score(o.CIUpper),
		OuterScore:       score(o.OuterScore),
		Failed:           o.Failed,
		Reason:           o.Reason,
		NumConfigs:       o.NumConfigs,
		NumTrials:        o.NumTrials,
		FailedTrials:     o.FailedTrials,
		SkippedResamples: o.SkippedResamples,
		DurationSeconds:  o.Duration.Seconds(),
	}
}

func newTableView(t *comparison.ComparisonTable) tableView {
	v := tableView{RunID: string(t.RunID), Rows: make([]outcomeView, 0, len(t.Rows)), Failed: t.Failed()}
	for _, r := range t.Rows {
		v.Rows = append(v.Rows, newOutcomeView(r))
	}
	return v
}

func newPipelineView(p comparison.PipelineSummary) pipelineView {
	return pipelineView{
		Rank:            p.Rank,
		PipelineID:      p.PipelineID,
		Runs:            p.Runs,
		Failed:          p.Failed,
		MeanCorrected:   score(p.MeanCorrected),
		StdCorrected:    score(p.StdCorrected),
		MedianCorrected: score(p.MedianCorrected),
		CILower:         score(p.CILower),
		CIUpper:         score(p.CIUpper),
		MeanInner:       score(p.MeanInner),
		MeanOuter:       score(p.MeanOuter),
		Optimism:        score(p.Optimism),
	}
}

func newSummaryView(s *comparison.Summary) summaryView {
	v := summaryView{RunID: string(s.RunID), Pipelines: make([]pipelineView, 0, len(s.Pipelines))}
	if best, ok := s.Best(); ok {
		v.Best = best.PipelineID
	}
	for _, p := range s.Pipelines {
		v.Pipelines = append(v.Pipelines, newPipelineView(p))
	}
	return v
}
