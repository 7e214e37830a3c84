package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gomodsel/domain/comparison"
	"gomodsel/domain/core"
	apperrors "gomodsel/internal/errors"
)

// CSVSink writes the final table to Path and the summary next to it.
// Preliminary rows are appended to Path + ".prelim.csv".
type CSVSink struct {
	Path string

	mu sync.Mutex
}

// NewCSVSink creates a CSV sink for path_final_results.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{Path: path}
}

// PrelimPath is where preliminary rows accumulate.
func (s *CSVSink) PrelimPath() string { return s.Path + ".prelim.csv" }

// SummaryPath is where WriteFinal puts the ranked summary.
func (s *CSVSink) SummaryPath() string {
	ext := filepath.Ext(s.Path)
	return strings.TrimSuffix(s.Path, ext) + "_summary.csv"
}

// Begin discards preliminary rows left by an earlier run on the same path.
func (s *CSVSink) Begin(ctx context.Context, runID core.RunID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.PrelimPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.SinkError("csv", err)
	}
	return nil
}

// WritePreliminary appends one row, writing the header when the file is new.
func (s *CSVSink) WritePreliminary(ctx context.Context, o comparison.SelectionOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.PrelimPath()), 0o755); err != nil {
		return apperrors.SinkError("csv", err)
	}
	_, statErr := os.Stat(s.PrelimPath())
	fresh := errors.Is(statErr, os.ErrNotExist)
	f, err := os.OpenFile(s.PrelimPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.SinkError("csv", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(ResultColumns); err != nil {
			return apperrors.SinkError("csv", err)
		}
	}
	if err := w.Write(outcomeRecord(o)); err != nil {
		return apperrors.SinkError("csv", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.SinkError("csv", err)
	}
	return nil
}

// WriteFinal replaces the results and summary files.
func (s *CSVSink) WriteFinal(ctx context.Context, table *comparison.ComparisonTable, summary *comparison.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := [][]string{ResultColumns}
	for _, o := range table.Rows {
		rows = append(rows, outcomeRecord(o))
	}
	if err := writeAll(s.Path, rows); err != nil {
		return apperrors.SinkError("csv", err)
	}
	if summary == nil {
		return nil
	}
	rows = [][]string{SummaryColumns}
	for _, p := range summary.Pipelines {
		rows = append(rows, summaryRecord(p))
	}
	if err := writeAll(s.SummaryPath(), rows); err != nil {
		return apperrors.SinkError("csv", err)
	}
	return nil
}

// ReadTable loads the final results file. Preliminary rows win when there
// is no final file or when they belong to a later run than it, which is the
// case after a crash. Later preliminary rows replace earlier rows with the
// same key.
func (s *CSVSink) ReadTable(ctx context.Context) (*comparison.ComparisonTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	final, err := readCSVFile(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.SinkError("csv", err)
	}
	prelim, perr := readCSVFile(s.PrelimPath())
	if perr != nil && !errors.Is(perr, os.ErrNotExist) {
		return nil, apperrors.SinkError("csv", perr)
	}
	switch {
	case final == nil && prelim == nil:
		return nil, apperrors.SinkError("csv", fmt.Errorf("no results at %s", s.Path))
	case final == nil:
		return prelim, nil
	case prelim != nil && prelim.Len() > 0 && prelim.RunID != final.RunID:
		return prelim, nil
	}
	return final, nil
}

func readCSVFile(path string) (*comparison.ComparisonTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a results file with a header row. Only rows of the run
// that wrote the last row are kept.
func ReadCSV(r io.Reader) (*comparison.ComparisonTable, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read results header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(ResultColumns, ",") {
		return nil, fmt.Errorf("unexpected results header %v", header)
	}

	byRun := make(map[core.RunID]map[comparison.Key]comparison.SelectionOutcome)
	var last core.RunID
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		o, err := parseOutcome(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if byRun[o.RunID] == nil {
			byRun[o.RunID] = make(map[comparison.Key]comparison.SelectionOutcome)
		}
		byRun[o.RunID][o.Key()] = o
		last = o.RunID
	}

	table := &comparison.ComparisonTable{RunID: last}
	for _, o := range byRun[last] {
		table.Rows = append(table.Rows, o)
	}
	sort.Slice(table.Rows, func(i, j int) bool { return table.Rows[i].Key().Less(table.Rows[j].Key()) })
	return table, nil
}

func writeAll(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
