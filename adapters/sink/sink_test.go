package sink

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

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
	return m.Called(ctx, o).Error(0)
}

func (m *MockSink) WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	return m.Called(ctx, table, summary).Error(0)
}

func sampleTable() (*comparison.ComparisonTable, *comparison.Summary) {
	ok := comparison.SelectionOutcome{
		RunID:            "run-7",
		PipelineID:       "FScoreSelection__KNNEstimator",
		RandomState:      3,
		BestConfig:       space.Configuration{"FScoreSelection__num_features": 4, "KNNEstimator__weights": "distance"},
		InnerScore:       0.91,
		CorrectedScore:   0.84,
		CILower:          0.75,
		CIUpper:          0.93,
		OuterScore:       0.8,
		NumConfigs:       12,
		NumTrials:        30,
		FailedTrials:     1,
		SkippedResamples: 2,
		Duration:         1500 * time.Millisecond,
	}
	bad := comparison.Failure("run-7", "IdentitySelection__GNBEstimator", 3, math.NaN(), "panic: boom, again")
	table := &comparison.ComparisonTable{RunID: "run-7", Rows: []comparison.SelectionOutcome{ok, bad}}
	summary := &comparison.Summary{RunID: "run-7", Pipelines: []comparison.PipelineSummary{
		{Rank: 1, PipelineID: ok.PipelineID, Runs: 1, MeanCorrected: 0.84, StdCorrected: 0, MedianCorrected: 0.84,
			CILower: 0.84, CIUpper: 0.84, MeanInner: 0.91, MeanOuter: 0.8, Optimism: 0.07},
		{Rank: 2, PipelineID: bad.PipelineID, Runs: 1, Failed: 1, MeanCorrected: math.NaN(), StdCorrected: math.NaN(),
			MedianCorrected: math.NaN(), CILower: math.NaN(), CIUpper: math.NaN(), MeanInner: math.NaN(),
			MeanOuter: math.NaN(), Optimism: math.NaN()},
	}}
	return table, summary
}

func TestCSVSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewCSVSink(filepath.Join(t.TempDir(), "out", "results.csv"))
	table, summary := sampleTable()

	for _, o := range table.Rows {
		require.NoError(t, s.WritePreliminary(ctx, o))
	}
	prelim, err := s.ReadTable(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, prelim.Len())

	require.NoError(t, s.WriteFinal(ctx, table, summary))
	got, err := s.ReadTable(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, core.RunID("run-7"), got.RunID)

	failed, ok := got.Lookup("IdentitySelection__GNBEstimator", 3)
	require.True(t, ok)
	assert.True(t, failed.Failed)
	assert.Equal(t, "panic: boom, again", failed.Reason)
	assert.True(t, math.IsNaN(failed.CorrectedScore))
	assert.Nil(t, failed.BestConfig)

	good, ok := got.Lookup("FScoreSelection__KNNEstimator", 3)
	require.True(t, ok)
	assert.Equal(t, table.Rows[0].ConfigKey(), good.ConfigKey())
	assert.Equal(t, 0.84, good.CorrectedScore)
	assert.Equal(t, 2, good.SkippedResamples)
	assert.Equal(t, 1500*time.Millisecond, good.Duration)

	raw, err := os.ReadFile(s.SummaryPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "rank,pipeline_id,runs")
	assert.Equal(t, filepath.Join(filepath.Dir(s.Path), "results_summary.csv"), s.SummaryPath())
}

func TestCSVPreliminaryKeepsLatestRowPerKey(t *testing.T) {
	ctx := context.Background()
	s := NewCSVSink(filepath.Join(t.TempDir(), "results.csv"))
	table, _ := sampleTable()
	first := table.Rows[0]
	second := first
	second.CorrectedScore = 0.5

	require.NoError(t, s.WritePreliminary(ctx, first))
	require.NoError(t, s.WritePreliminary(ctx, second))
	got, err := s.ReadTable(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, 0.5, got.Rows[0].CorrectedScore)
}

func runRow(run core.RunID, rs int64) comparison.SelectionOutcome {
	return comparison.SelectionOutcome{
		RunID:          run,
		PipelineID:     "IdentitySelection__GNBEstimator",
		RandomState:    rs,
		BestConfig:     space.Configuration{"GNBEstimator__var_smoothing": 1e-9},
		InnerScore:     0.7,
		CorrectedScore: 0.6,
		CILower:        0.5,
		CIUpper:        0.7,
		OuterScore:     0.65,
	}
}

func TestCSVReadTablePrefersCrashedLaterRun(t *testing.T) {
	ctx := context.Background()
	s := NewCSVSink(filepath.Join(t.TempDir(), "results.csv"))

	require.NoError(t, s.Begin(ctx, "run-a"))
	a0, a1 := runRow("run-a", 0), runRow("run-a", 1)
	require.NoError(t, s.WritePreliminary(ctx, a0))
	require.NoError(t, s.WritePreliminary(ctx, a1))
	require.NoError(t, s.WriteFinal(ctx, &comparison.ComparisonTable{RunID: "run-a", Rows: []comparison.SelectionOutcome{a0, a1}}, nil))

	got, err := s.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RunID("run-a"), got.RunID)
	assert.Equal(t, 2, got.Len())

	require.NoError(t, s.Begin(ctx, "run-b"))
	require.NoError(t, s.WritePreliminary(ctx, runRow("run-b", 5)))

	got, err = s.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RunID("run-b"), got.RunID)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, core.RunID("run-b"), got.Rows[0].RunID)
	assert.Equal(t, int64(5), got.Rows[0].RandomState)
}

func TestCSVBeginDiscardsEarlierPreliminaryRows(t *testing.T) {
	ctx := context.Background()
	s := NewCSVSink(filepath.Join(t.TempDir(), "results.csv"))

	require.NoError(t, s.Begin(ctx, "run-a"))
	require.NoError(t, s.WritePreliminary(ctx, runRow("run-a", 1)))
	require.NoError(t, Multi{s, new(MockSink)}.Begin(ctx, "run-b"))
	_, err := os.Stat(s.PrelimPath())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.WritePreliminary(ctx, runRow("run-b", 0)))

	got, err := s.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RunID("run-b"), got.RunID)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, int64(0), got.Rows[0].RandomState)
}

func TestReadCSVKeepsOnlyLastRun(t *testing.T) {
	ctx := context.Background()
	s := NewCSVSink(filepath.Join(t.TempDir(), "results.csv"))
	require.NoError(t, s.WritePreliminary(ctx, runRow("run-b", 0)))
	require.NoError(t, s.WritePreliminary(ctx, runRow("run-a", 1)))
	require.NoError(t, s.WritePreliminary(ctx, runRow("run-b", 2)))

	got, err := s.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RunID("run-b"), got.RunID)
	require.Equal(t, 2, got.Len())
	for _, o := range got.Rows {
		assert.Equal(t, core.RunID("run-b"), o.RunID)
	}
}

func TestReadCSVRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	_, err := NewCSVSink(path).ReadTable(context.Background())
	assert.ErrorContains(t, err, "unexpected results header")

	_, err = NewCSVSink(filepath.Join(t.TempDir(), "none.csv")).ReadTable(context.Background())
	assert.Error(t, err)
}

func TestExcelSinkWritesBothSheets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.xlsx")
	s := NewExcelSink(path)
	table, summary := sampleTable()

	require.NoError(t, s.WritePreliminary(ctx, table.Rows[0]))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.WriteFinal(ctx, table, summary))
	results, err := ReadWorkbookRows(path, ResultsSheet)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, ResultColumns, results[0])
	assert.Equal(t, "FScoreSelection__KNNEstimator", results[1][1])

	sum, err := ReadWorkbookRows(path, SummarySheet)
	require.NoError(t, err)
	require.Len(t, sum, 3)
	assert.Equal(t, "1", sum[1][0])
}

func TestMultiAttemptsEverySink(t *testing.T) {
	ctx := context.Background()
	table, summary := sampleTable()
	a, b := new(MockSink), new(MockSink)
	a.On("WritePreliminary", ctx, table.Rows[0]).Return(errors.New("a down"))
	b.On("WritePreliminary", ctx, table.Rows[0]).Return(nil)
	a.On("WriteFinal", ctx, table, summary).Return(nil)
	b.On("WriteFinal", ctx, table, summary).Return(nil)

	m := Multi{a, b}
	assert.ErrorContains(t, m.WritePreliminary(ctx, table.Rows[0]), "a down")
	assert.NoError(t, m.WriteFinal(ctx, table, summary))
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestOutcomeRowConversion(t *testing.T) {
	table, _ := sampleTable()
	row := toOutcomeRow(table.Rows[0], true)
	assert.Equal(t, "run-7", row.RunID)
	assert.Equal(t, int64(1500), row.DurationMS)
	assert.True(t, row.Preliminary)

	back, err := row.outcome()
	require.NoError(t, err)
	assert.Equal(t, table.Rows[0].ConfigKey(), back.ConfigKey())
	assert.Equal(t, table.Rows[0].CorrectedScore, back.CorrectedScore)
	assert.Equal(t, table.Rows[0].Duration, back.Duration)
}

func TestPostgresSinkIntegration(t *testing.T) {
	url := os.Getenv("GOMODSEL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GOMODSEL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresSink(db)
	require.NoError(t, s.EnsureSchema(ctx))
	table, summary := sampleTable()
	runID := core.NewRunID()
	table.RunID, summary.RunID = runID, runID
	for i := range table.Rows {
		table.Rows[i].RunID = runID
		require.NoError(t, s.WritePreliminary(ctx, table.Rows[i]))
	}
	require.NoError(t, s.WriteFinal(ctx, table, summary))

	s.RunID = runID
	got, err := s.ReadTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}
