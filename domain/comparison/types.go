package comparison

import (
	"math"
	"sort"
	"time"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
)

// SelectionOutcome is the record of one (pipeline, random state) unit.
//
// Failed rows carry the run's error score in every score column and a Reason.
type SelectionOutcome struct {
	RunID       core.RunID          `json:"run_id"`
	PipelineID  string              `json:"pipeline_id"`
	RandomState int64               `json:"random_state"`
	BestConfig  space.Configuration `json:"best_config"`

	InnerScore     float64 `json:"inner_score"`
	CorrectedScore float64 `json:"corrected_score"`
	CILower        float64 `json:"ci_lower"`
	CIUpper        float64 `json:"ci_upper"`
	OuterScore     float64 `json:"outer_score"`

	Failed bool   `json:"failed"`
	Reason string `json:"reason,omitempty"`

	NumConfigs       int           `json:"num_configs"`
	NumTrials        int           `json:"num_trials"`
	FailedTrials     int           `json:"failed_trials"`
	SkippedResamples int           `json:"skipped_resamples"`
	ResampleScores   []float64     `json:"-"`
	Duration         time.Duration `json:"duration"`
}

// Key identifies the outcome within a table.
func (o SelectionOutcome) Key() Key {
	return Key{PipelineID: o.PipelineID, RandomState: o.RandomState}
}

// ConfigKey is the serialised best configuration, empty when none was chosen.
func (o SelectionOutcome) ConfigKey() string {
	if o.BestConfig == nil {
		return ""
	}
	return o.BestConfig.Key()
}

// Failure builds a failed row for a unit.
func Failure(runID core.RunID, pipelineID string, randomState int64, errorScore float64, reason string) SelectionOutcome {
	return SelectionOutcome{
		RunID:          runID,
		PipelineID:     pipelineID,
		RandomState:    randomState,
		InnerScore:     errorScore,
		CorrectedScore: errorScore,
		CILower:        errorScore,
		CIUpper:        errorScore,
		OuterScore:     errorScore,
		Failed:         true,
		Reason:         reason,
	}
}

// Key is the (pipeline, random state) identity of a row.
type Key struct {
	PipelineID  string
	RandomState int64
}

// Less orders keys by pipeline id then random state.
func (k Key) Less(o Key) bool {
	if k.PipelineID != o.PipelineID {
		return k.PipelineID < o.PipelineID
	}
	return k.RandomState < o.RandomState
}

// ComparisonTable holds one row per (pipeline, random state), sorted by Key.
type ComparisonTable struct {
	RunID core.RunID         `json:"run_id"`
	Rows  []SelectionOutcome `json:"rows"`
}

// Len is the number of rows.
func (t *ComparisonTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Failed counts failed rows.
func (t *ComparisonTable) Failed() int {
	n := 0
	for _, r := range t.Rows {
		if r.Failed {
			n++
		}
	}
	return n
}

// Lookup finds the row for a pipeline and random state.
func (t *ComparisonTable) Lookup(pipelineID string, randomState int64) (SelectionOutcome, bool) {
	want := Key{PipelineID: pipelineID, RandomState: randomState}
	i := sort.Search(len(t.Rows), func(i int) bool { return !t.Rows[i].Key().Less(want) })
	if i < len(t.Rows) && t.Rows[i].Key() == want {
		return t.Rows[i], true
	}
	return SelectionOutcome{}, false
}

// PipelineIDs lists the distinct pipelines in table order.
func (t *ComparisonTable) PipelineIDs() []string {
	var ids []string
	for i, r := range t.Rows {
		if i == 0 || t.Rows[i-1].PipelineID != r.PipelineID {
			ids = append(ids, r.PipelineID)
		}
	}
	return ids
}

// PipelineSummary aggregates one pipeline's rows across random states.
// Statistics are over successful rows only.
type PipelineSummary struct {
	Rank       int    `json:"rank"`
	PipelineID string `json:"pipeline_id"`
	Runs       int    `json:"runs"`
	Failed     int    `json:"failed"`

	MeanCorrected   float64 `json:"mean_corrected"`
	StdCorrected    float64 `json:"std_corrected"`
	MedianCorrected float64 `json:"median_corrected"`
	CILower         float64 `json:"ci_lower"`
	CIUpper         float64 `json:"ci_upper"`
	MeanInner       float64 `json:"mean_inner"`
	MeanOuter       float64 `json:"mean_outer"`
	Optimism        float64 `json:"optimism"`
}

// Succeeded is Runs minus Failed.
func (s PipelineSummary) Succeeded() int {
	return s.Runs - s.Failed
}

// HasScores reports whether at least one successful row fed the statistics.
func (s PipelineSummary) HasScores() bool {
	return s.Succeeded() > 0 && !math.IsNaN(s.MeanCorrected)
}

// Summary is the ranked per-pipeline view of a table.
type Summary struct {
	RunID     core.RunID        `json:"run_id"`
	Pipelines []PipelineSummary `json:"pipelines"`
}

// Best returns the top-ranked pipeline with scores, if any.
func (s *Summary) Best() (PipelineSummary, bool) {
	for _, p := range s.Pipelines {
		if p.HasScores() {
			return p, true
		}
	}
	return PipelineSummary{}, false
}
