package aggregate

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	"gomodsel/domain/space"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) WritePreliminary(ctx context.Context, o comparison.SelectionOutcome) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockSink) WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	args := m.Called(ctx, table, summary)
	return args.Error(0)
}

func row(pipeline string, rs int64, inner, corrected, outer float64) comparison.SelectionOutcome {
	return comparison.SelectionOutcome{
		PipelineID:     pipeline,
		RandomState:    rs,
		BestConfig:     space.Configuration{"k": int(rs)},
		InnerScore:     inner,
		CorrectedScore: corrected,
		OuterScore:     outer,
	}
}

func TestAddIsIdempotentAndOrdersRows(t *testing.T) {
	a := New(core.RunID("run-1"), 0.05)
	a.Add(row("B", 2, 0.8, 0.7, 0.7))
	a.Add(row("A", 2, 0.8, 0.7, 0.7))
	a.Add(row("A", 1, 0.8, 0.7, 0.7))
	a.Add(row("A", 1, 0.9, 0.6, 0.7))

	table := a.Table()
	require.Equal(t, 3, table.Len())
	assert.Equal(t, core.RunID("run-1"), table.RunID)
	var keys []comparison.Key
	for _, r := range table.Rows {
		keys = append(keys, r.Key())
		assert.Equal(t, core.RunID("run-1"), r.RunID)
	}
	assert.Equal(t, []comparison.Key{
		{PipelineID: "A", RandomState: 1},
		{PipelineID: "A", RandomState: 2},
		{PipelineID: "B", RandomState: 2},
	}, keys)

	got, ok := table.Lookup("A", 1)
	require.True(t, ok)
	assert.Equal(t, 0.6, got.CorrectedScore)
	_, ok = table.Lookup("C", 1)
	assert.False(t, ok)
}

func TestConcurrentAddsMatchSequential(t *testing.T) {
	seq := New("run", 0.05)
	par := New("run", 0.05)
	var rows []comparison.SelectionOutcome
	for _, p := range []string{"X", "Y", "Z"} {
		for rs := int64(0); rs < 20; rs++ {
			rows = append(rows, row(p, rs, 0.7, 0.6, 0.65))
		}
	}
	for _, r := range rows {
		seq.Add(r)
	}
	var wg sync.WaitGroup
	for i := len(rows) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(r comparison.SelectionOutcome) {
			defer wg.Done()
			par.Add(r)
		}(rows[i])
	}
	wg.Wait()
	assert.Equal(t, seq.Table(), par.Table())
}

func TestMergeUnionsAndRejectsConflicts(t *testing.T) {
	a := New("run", 0.05)
	b := New("run", 0.05)
	a.Add(row("A", 1, 0.8, 0.7, 0.7))
	b.Add(row("A", 2, 0.8, 0.7, 0.7))
	b.Add(row("A", 1, 0.8, 0.7, 0.7))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, 2, a.Len())

	c := New("run", 0.05)
	c.Add(row("A", 2, 0.9, 0.1, 0.7))
	assert.Error(t, a.Merge(c))
	got, _ := a.Table().Lookup("A", 2)
	assert.Equal(t, 0.7, got.CorrectedScore)
}

func TestSummarizeStatisticsAndRanking(t *testing.T) {
	a := New("run", 0.05)
	a.Add(row("A", 1, 0.9, 0.6, 0.55))
	a.Add(row("A", 2, 0.9, 0.8, math.NaN()))
	a.Add(comparison.Failure("", "A", 3, math.NaN(), "boom"))
	a.Add(row("B", 1, 0.95, 0.9, 0.85))
	a.Add(comparison.Failure("", "C", 1, math.NaN(), "boom"))

	s := a.Summarize()
	require.Len(t, s.Pipelines, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{s.Pipelines[0].PipelineID, s.Pipelines[1].PipelineID, s.Pipelines[2].PipelineID})
	for i, p := range s.Pipelines {
		assert.Equal(t, i+1, p.Rank)
	}

	pa := s.Pipelines[1]
	assert.Equal(t, 3, pa.Runs)
	assert.Equal(t, 1, pa.Failed)
	assert.InDelta(t, 0.7, pa.MeanCorrected, 1e-12)
	assert.InDelta(t, 0.7, pa.MedianCorrected, 1e-12)
	assert.InDelta(t, math.Sqrt(0.02), pa.StdCorrected, 1e-12)
	// t(0.975, 1) = 12.7062
	assert.InDelta(t, 0.7-1.27062, pa.CILower, 1e-4)
	assert.InDelta(t, 0.7+1.27062, pa.CIUpper, 1e-4)
	assert.InDelta(t, 0.9, pa.MeanInner, 1e-12)
	assert.InDelta(t, 0.55, pa.MeanOuter, 1e-12)
	assert.InDelta(t, 0.2, pa.Optimism, 1e-12)

	pb := s.Pipelines[0]
	assert.Equal(t, 0.0, pb.StdCorrected)
	assert.Equal(t, 0.9, pb.CILower)
	assert.Equal(t, 0.9, pb.CIUpper)

	pc := s.Pipelines[2]
	assert.False(t, pc.HasScores())
	assert.True(t, math.IsNaN(pc.MeanCorrected))

	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, "B", best.PipelineID)
}

func TestSummarizeOptimismUsesPairedRows(t *testing.T) {
	a := New("run", 0.05)
	a.Add(row("A", 1, 0.95, math.NaN(), 0.6))
	a.Add(row("A", 2, 0.8, 0.7, 0.65))
	a.Add(row("A", 3, math.NaN(), 0.5, 0.6))

	p := a.Summarize().Pipelines[0]
	assert.InDelta(t, 0.875, p.MeanInner, 1e-12)
	assert.InDelta(t, 0.6, p.MeanCorrected, 1e-12)
	assert.InDelta(t, 0.1, p.Optimism, 1e-12)
}

func TestSummarizeBreaksTiesByPipelineID(t *testing.T) {
	a := New("run", 0.05)
	a.Add(row("Zeta", 1, 0.8, 0.7, 0.7))
	a.Add(row("Alpha", 1, 0.8, 0.7, 0.7))
	s := a.Summarize()
	assert.Equal(t, "Alpha", s.Pipelines[0].PipelineID)
	assert.Equal(t, "Zeta", s.Pipelines[1].PipelineID)
}

func TestRecordWritesPreliminaryRows(t *testing.T) {
	sink := new(MockSink)
	sink.On("WritePreliminary", mock.Anything, mock.MatchedBy(func(o comparison.SelectionOutcome) bool {
		return o.PipelineID == "A" && o.RunID == "run"
	})).Return(nil).Twice()

	a := New("run", 0.05)
	require.NoError(t, a.Record(context.Background(), row("A", 1, 0.8, 0.7, 0.7), sink))
	require.NoError(t, a.Record(context.Background(), row("A", 2, 0.8, 0.7, 0.7), sink))
	require.NoError(t, a.Record(context.Background(), row("B", 1, 0.8, 0.7, 0.7), nil))
	sink.AssertExpectations(t)
	assert.Equal(t, 3, a.Len())
}

func TestFinalizeWritesTableAndSummary(t *testing.T) {
	a := New("run", 0.05)
	a.Add(row("A", 1, 0.8, 0.7, 0.7))

	sink := new(MockSink)
	sink.On("WriteFinal", mock.Anything, mock.AnythingOfType("*comparison.ComparisonTable"), mock.AnythingOfType("*comparison.Summary")).Return(nil).Once()
	summary, err := a.Finalize(context.Background(), sink)
	require.NoError(t, err)
	require.Len(t, summary.Pipelines, 1)
	sink.AssertExpectations(t)

	failing := new(MockSink)
	failing.On("WriteFinal", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	_, err = a.Finalize(context.Background(), failing)
	assert.ErrorContains(t, err, "disk full")
}
