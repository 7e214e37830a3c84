// Package report renders a comparison summary as Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"gomodsel/domain/comparison"
)

// Markdown renders the ranking, the failed rows and the selected
// configurations.
func Markdown(table *comparison.ComparisonTable, summary *comparison.Summary) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Model comparison %s\n\n", summary.RunID)

	if best, ok := summary.Best(); ok {
		fmt.Fprintf(&b, "Best pipeline: **%s** with bias-corrected score %s (%s to %s).\n\n",
			best.PipelineID, num(best.MeanCorrected), num(best.CILower), num(best.CIUpper))
	} else {
		b.WriteString("No pipeline produced a usable score.\n\n")
	}

	b.WriteString("## Ranking\n\n")
	b.WriteString("| Rank | Pipeline | Runs | Failed | Corrected | Std | CI | Inner | Outer | Optimism |\n")
	b.WriteString("|---:|---|---:|---:|---:|---:|---|---:|---:|---:|\n")
	for _, p := range summary.Pipelines {
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %s | %s | %s to %s | %s | %s | %s |\n",
			p.Rank, p.PipelineID, p.Runs, p.Failed,
			num(p.MeanCorrected), num(p.StdCorrected), num(p.CILower), num(p.CIUpper),
			num(p.MeanInner), num(p.MeanOuter), num(p.Optimism))
	}

	if table == nil {
		return b.Bytes()
	}
	if table.Failed() > 0 {
		b.WriteString("\n## Failed runs\n\n")
		for _, r := range table.Rows {
			if r.Failed {
				fmt.Fprintf(&b, "- `%s` random state %d: %s\n", r.PipelineID, r.RandomState, oneLine(r.Reason))
			}
		}
	}

	b.WriteString("\n## Selected configurations\n\n")
	b.WriteString("| Pipeline | Random state | Configuration | Corrected | Outer |\n")
	b.WriteString("|---|---:|---|---:|---:|\n")
	for _, r := range table.Rows {
		if r.Failed {
			continue
		}
		fmt.Fprintf(&b, "| %s | %d | `%s` | %s | %s |\n",
			r.PipelineID, r.RandomState, r.ConfigKey(), num(r.CorrectedScore), num(r.OuterScore))
	}
	return b.Bytes()
}

// HTML renders the Markdown report as a complete page.
func HTML(table *comparison.ComparisonTable, summary *comparison.Summary) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Title: fmt.Sprintf("Model comparison %s", summary.RunID),
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(Markdown(table, summary), p, r)
}

// Write picks HTML for .html/.htm paths and Markdown otherwise.
func Write(path string, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	var out []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		out = HTML(table, summary)
	default:
		out = Markdown(table, summary)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
