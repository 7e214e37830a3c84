package sink

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"gomodsel/domain/comparison"
	apperrors "gomodsel/internal/errors"
)

// Sheet names of the results workbook.
const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

// ExcelSink writes a workbook with a Results and a Summary sheet. It has no
// preliminary representation; WritePreliminary is a no-op.
type ExcelSink struct {
	Path string

	mu sync.Mutex
}

// NewExcelSink creates a sink writing the workbook at path.
func NewExcelSink(path string) *ExcelSink {
	return &ExcelSink{Path: path}
}

func (s *ExcelSink) WritePreliminary(context.Context, comparison.SelectionOutcome) error {
	return nil
}

// WriteFinal replaces the workbook.
func (s *ExcelSink) WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return apperrors.SinkError("excel", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return apperrors.SinkError("excel", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return apperrors.SinkError("excel", err)
	}

	results := [][]interface{}{header(ResultColumns)}
	for _, o := range table.Rows {
		results = append(results, []interface{}{
			o.RunID.String(), o.PipelineID, o.RandomState, o.ConfigKey(),
			cell(o.InnerScore), cell(o.CorrectedScore), cell(o.CILower), cell(o.CIUpper), cell(o.OuterScore),
			o.Failed, o.Reason,
			o.NumConfigs, o.NumTrials, o.FailedTrials, o.SkippedResamples, o.Duration.Milliseconds(),
		})
	}
	if err := writeSheet(f, ResultsSheet, results, bold); err != nil {
		return apperrors.SinkError("excel", err)
	}

	rows := [][]interface{}{header(SummaryColumns)}
	if summary != nil {
		for _, p := range summary.Pipelines {
			rows = append(rows, []interface{}{
				p.Rank, p.PipelineID, p.Runs, p.Failed,
				cell(p.MeanCorrected), cell(p.StdCorrected), cell(p.MedianCorrected),
				cell(p.CILower), cell(p.CIUpper),
				cell(p.MeanInner), cell(p.MeanOuter), cell(p.Optimism),
			})
		}
	}
	if err := writeSheet(f, SummarySheet, rows, bold); err != nil {
		return apperrors.SinkError("excel", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return apperrors.SinkError("excel", err)
	}
	if err := f.SaveAs(s.Path); err != nil {
		return apperrors.SinkError("excel", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, ref, &row); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func header(cols []string) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

// cell leaves NaN and infinities blank; workbooks cannot store them.
func cell(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}

// ReadWorkbookRows returns the raw rows of a sheet, header included.
func ReadWorkbookRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.SinkError("excel", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.SinkError("excel", err)
	}
	return rows, nil
}
