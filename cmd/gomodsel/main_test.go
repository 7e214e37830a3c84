package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodsel/adapters/sink"
	"gomodsel/internal/config"
)

func TestBuildPipelines(t *testing.T) {
	pipes, err := buildPipelines([]string{"IdentitySelection", "FScoreSelection"}, []string{"GNBEstimator"})
	require.NoError(t, err)
	require.Len(t, pipes, 2)
	assert.Equal(t, "IdentitySelection__GNBEstimator", pipes[0].ID())
	assert.Equal(t, "FScoreSelection__GNBEstimator", pipes[1].ID())

	_, err = buildPipelines([]string{"NoSuchSelector"}, nil)
	assert.Error(t, err)
}

func TestPipelinesCommandListsCrossProduct(t *testing.T) {
	cmd := newPipelinesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--selectors", "IdentitySelection", "--estimators", "GNBEstimator,KNNEstimator"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "IdentitySelection__GNBEstimator")
	assert.Contains(t, out.String(), "IdentitySelection__KNNEstimator")
	assert.Contains(t, out.String(), "2 pipelines")
}

func TestApplyRunFlagsOnlyOverridesSetFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Run.CV = 10
	cfg.Run.OOB = 200
	cfg.Run.RandomStates = []int64{0}

	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--cv", "3", "--random-states", "5-7"}))

	src := &config.Config{}
	src.Run.CV = 3
	require.NoError(t, applyRunFlags(cmd, cfg, src, runFlags{randomStates: "5-7"}))
	assert.Equal(t, 3, cfg.Run.CV)
	assert.Equal(t, 200, cfg.Run.OOB)
	assert.Equal(t, []int64{5, 6, 7}, cfg.Run.RandomStates)
}

func writeSeparable(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,f1,f2,label\n")
	for i := 0; i < 40; i++ {
		label := i % 2
		fmt.Fprintf(&b, "r%d,%g,%g,%d\n", i, float64(label)*3+float64(i%5)*0.1, float64(i%7)*0.3, label)
	}
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRunComparisonWritesResultsAndReport(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Run: config.RunConfig{
			CV: 2, OOB: 5, MaxEvals: 2, RandomStates: []int64{0},
			Shuffle: true, WritePrelim: true, ErrorScore: math.NaN(), NJobs: 1,
			TestSize: 0.25, Alpha: 0.05, InnerMode: "cv", MinCoverage: 0.5,
			Aggregate: "mean", CompleteMatrix: true, Scoring: "roc_auc", Suggester: "random",
			Selectors: []string{"IdentitySelection"}, Estimators: []string{"GNBEstimator"},
		},
		Data: config.DataConfig{
			Predictors: writeSeparable(t, dir), TargetColumn: "label", IndexColumn: 0, Sheet: "Sheet1",
		},
		Output: config.OutputConfig{
			PathFinalResults: filepath.Join(dir, "out", "results.csv"),
			ReportPath:       filepath.Join(dir, "out", "report.md"),
		},
		LogLevel: "ERROR",
	}

	var out bytes.Buffer
	require.NoError(t, runComparison(context.Background(), cfg, "", &out))
	assert.Contains(t, out.String(), "IdentitySelection__GNBEstimator")

	table, err := sink.NewCSVSink(cfg.Output.PathFinalResults).ReadTable(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "IdentitySelection__GNBEstimator", table.Rows[0].PipelineID)

	md, err := os.ReadFile(cfg.Output.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "IdentitySelection__GNBEstimator")
}

func TestRunComparisonNeedsPredictors(t *testing.T) {
	cfg := &config.Config{Run: config.RunConfig{Scoring: "roc_auc", Suggester: "gp"}, LogLevel: "ERROR"}
	err := runComparison(context.Background(), cfg, "", &bytes.Buffer{})
	assert.ErrorContains(t, err, "no predictors file")
}
