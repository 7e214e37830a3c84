// Package dataload reads feature matrices and binary targets from CSV and
// XLSX files with a header row and an optional index column.
package dataload

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/dataset"
)

// DefaultSheet is read from XLSX files unless Options.Sheet says otherwise.
const DefaultSheet = "Sheet1"

// Options controls how a table becomes numbers.
type Options struct {
	// IndexColumn is the position of the row label column; negative for none.
	IndexColumn int
	// Regex keeps only feature columns whose header matches.
	Regex string
	Sheet string
	// TargetColumn, when set, reads the target from this column of the
	// predictors file instead of a separate file.
	TargetColumn string
}

// DefaultOptions treats the first column as the index.
func DefaultOptions() Options {
	return Options{IndexColumn: 0, Sheet: DefaultSheet}
}

// DataReader reads raw rows from a CSV or XLSX file.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewDataReader picks the format from the file extension.
func NewDataReader(filePath, sheet string) *DataReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &DataReader{filePath: filePath, fileType: fileType, sheet: sheet}
}

// ReadRows returns the trimmed header and data rows.
func (r *DataReader) ReadRows() (header []string, rows [][]string, err error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	start := time.Now()
	var raw [][]string
	switch r.fileType {
	case "csv":
		raw, err = r.readCSV()
	default:
		raw, err = r.readExcel()
	}
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < 2 {
		return nil, nil, fmt.Errorf("%s must have a header row and at least one data row", r.filePath)
	}
	log.Printf("[DataReader] %s read in %.2fms (%d rows)", r.filePath, float64(time.Since(start).Nanoseconds())/1e6, len(raw)-1)

	header = make([]string, len(raw[0]))
	for i, h := range raw[0] {
		header[i] = strings.TrimSpace(h)
	}
	for _, row := range raw[1:] {
		cells := make([]string, len(header))
		for j := 0; j < len(header) && j < len(row); j++ {
			cells[j] = strings.TrimSpace(row[j])
		}
		rows = append(rows, cells)
	}
	return header, rows, nil
}

func (r *DataReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", r.sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// Predictors is a parsed feature table.
type Predictors struct {
	X            *mat.Dense
	FeatureNames []string
	Index        []string
	// Target is set when Options.TargetColumn names a column.
	Target []float64
}

// LoadPredictors reads every non-index column (filtered by Options.Regex)
// as a float feature.
func LoadPredictors(path string, opts Options) (*Predictors, error) {
	header, rows, err := NewDataReader(path, opts.Sheet).ReadRows()
	if err != nil {
		return nil, err
	}
	var filter *regexp.Regexp
	if opts.Regex != "" {
		if filter, err = regexp.Compile(opts.Regex); err != nil {
			return nil, fmt.Errorf("invalid column filter %q: %w", opts.Regex, err)
		}
	}

	targetCol := -1
	var cols []int
	var names []string
	for j, h := range header {
		switch {
		case j == opts.IndexColumn:
		case opts.TargetColumn != "" && h == opts.TargetColumn:
			targetCol = j
		case filter != nil && !filter.MatchString(h):
		default:
			cols = append(cols, j)
			names = append(names, h)
		}
	}
	if opts.TargetColumn != "" && targetCol < 0 {
		return nil, fmt.Errorf("%s: target column %q not found", path, opts.TargetColumn)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: no feature columns selected", path)
	}

	p := &Predictors{X: mat.NewDense(len(rows), len(cols), nil), FeatureNames: names}
	for i, row := range rows {
		if opts.IndexColumn >= 0 && opts.IndexColumn < len(row) {
			p.Index = append(p.Index, row[opts.IndexColumn])
		}
		for k, j := range cols {
			v, err := parseCell(row[j])
			if err != nil {
				return nil, fmt.Errorf("%s: row %d column %q: %w", path, i+1, header[j], err)
			}
			p.X.Set(i, k, v)
		}
		if targetCol >= 0 {
			v, err := parseCell(row[targetCol])
			if err != nil {
				return nil, fmt.Errorf("%s: row %d target: %w", path, i+1, err)
			}
			p.Target = append(p.Target, v)
		}
	}
	return p, nil
}

// LoadTarget reads a single-column target file, skipping the index column.
func LoadTarget(path string, opts Options) ([]float64, error) {
	header, rows, err := NewDataReader(path, opts.Sheet).ReadRows()
	if err != nil {
		return nil, err
	}
	col := -1
	for j := range header {
		if j == opts.IndexColumn {
			continue
		}
		if col >= 0 {
			return nil, fmt.Errorf("%s: target file has more than one value column", path)
		}
		col = j
	}
	if col < 0 {
		return nil, fmt.Errorf("%s: target file has no value column", path)
	}
	y := make([]float64, len(rows))
	for i, row := range rows {
		if y[i], err = parseCell(row[col]); err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+1, err)
		}
	}
	return y, nil
}

// Load builds a dataset from a predictors file and, unless
// Options.TargetColumn is set, a separate target file.
func Load(predictorsPath, targetPath string, opts Options) (*dataset.Dataset, error) {
	p, err := LoadPredictors(predictorsPath, opts)
	if err != nil {
		return nil, err
	}
	y := p.Target
	if opts.TargetColumn == "" {
		if y, err = LoadTarget(targetPath, opts); err != nil {
			return nil, err
		}
	}
	if err := dataset.CheckShape(p.X, y); err != nil {
		return nil, err
	}
	if err := dataset.CheckBinary(y); err != nil {
		return nil, err
	}
	return &dataset.Dataset{X: p.X, Y: y, FeatureNames: p.FeatureNames, Index: p.Index}, nil
}

func parseCell(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "na", "nan":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
