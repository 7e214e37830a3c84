package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodsel/domain/comparison"
	"gomodsel/domain/space"
	"gomodsel/internal/aggregate"
)

func fixture() (*comparison.ComparisonTable, *comparison.Summary) {
	a := aggregate.New("run-1", 0.05)
	a.Add(comparison.SelectionOutcome{
		PipelineID: "IdentitySelection__GNBEstimator", RandomState: 1,
		BestConfig: space.Configuration{}, InnerScore: 0.9, CorrectedScore: 0.82, OuterScore: 0.8,
	})
	a.Add(comparison.SelectionOutcome{
		PipelineID: "FScoreSelection__KNNEstimator", RandomState: 1,
		BestConfig:     space.Configuration{"KNNEstimator__n_neighbors": 7},
		InnerScore:     0.95,
		CorrectedScore: 0.88,
		OuterScore:     0.86,
	})
	a.Add(comparison.Failure("", "ReliefFSelection__LogRegEstimator", 1, math.NaN(), "panic: index out of range\nstack"))
	return a.Table(), a.Summarize()
}

func TestMarkdownReport(t *testing.T) {
	md := string(Markdown(fixture()))
	assert.Contains(t, md, "# Model comparison run-1")
	assert.Contains(t, md, "Best pipeline: **FScoreSelection__KNNEstimator**")
	assert.Contains(t, md, "| 1 | FScoreSelection__KNNEstimator |")
	assert.Contains(t, md, "panic: index out of range stack")
	assert.Contains(t, md, "`KNNEstimator__n_neighbors=7`")
	assert.Less(t, strings.Index(md, "FScoreSelection__KNNEstimator |"), strings.Index(md, "IdentitySelection__GNBEstimator |"))
}

func TestHTMLReportIsCompletePage(t *testing.T) {
	page := string(HTML(fixture()))
	assert.Contains(t, page, "<title>Model comparison run-1</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<strong>FScoreSelection__KNNEstimator</strong>")
}

func TestWritePicksFormatByExtension(t *testing.T) {
	table, summary := fixture()
	dir := t.TempDir()

	require.NoError(t, Write(filepath.Join(dir, "r.md"), table, summary))
	require.NoError(t, Write(filepath.Join(dir, "sub", "r.html"), table, summary))

	md, err := os.ReadFile(filepath.Join(dir, "r.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Model comparison"))

	page, err := os.ReadFile(filepath.Join(dir, "sub", "r.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<html")
}
