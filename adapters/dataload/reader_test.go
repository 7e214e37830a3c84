package dataload

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gomodsel/domain/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const predictorsCSV = `id,age,gene_a,gene_b,label
p1,61,0.5,1.5,1
p2,47,0.25,,0
p3,52,1.0,2.0,1
`

func TestLoadPredictorsWithIndexAndFilter(t *testing.T) {
	path := writeFile(t, "x.csv", predictorsCSV)

	p, err := LoadPredictors(path, Options{IndexColumn: 0, Regex: "^gene_"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gene_a", "gene_b"}, p.FeatureNames)
	assert.Equal(t, []string{"p1", "p2", "p3"}, p.Index)
	r, c := p.X.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.25, p.X.At(1, 0))
	assert.True(t, math.IsNaN(p.X.At(1, 1)))
	assert.Nil(t, p.Target)
}

func TestLoadWithTargetColumn(t *testing.T) {
	path := writeFile(t, "x.csv", predictorsCSV)

	ds, err := Load(path, "", Options{IndexColumn: 0, TargetColumn: "label", Regex: "age|gene_a"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, ds.Y)
	assert.Equal(t, []string{"age", "gene_a"}, ds.FeatureNames)
}

func TestLoadSeparateTargetFile(t *testing.T) {
	x := writeFile(t, "x.csv", "id,f1,f2\na,1,2\nb,3,4\nc,5,6\n")
	y := writeFile(t, "y.csv", "id,outcome\na,1.0\nb,0.0\nc,1\n")

	ds, err := Load(x, y, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, ds.Y)
	assert.Equal(t, 6.0, ds.X.At(2, 1))

	short := writeFile(t, "y.csv", "id,outcome\na,1\nb,0\n")
	_, err = Load(x, short, DefaultOptions())
	assert.ErrorIs(t, err, core.ErrInputShape)

	multi := writeFile(t, "y.csv", "id,a,b\na,1,0\n")
	_, err = LoadTarget(multi, DefaultOptions())
	assert.Error(t, err)

	nonBinary := writeFile(t, "y.csv", "id,outcome\na,1\nb,2\nc,0\n")
	_, err = Load(x, nonBinary, DefaultOptions())
	assert.ErrorIs(t, err, core.ErrInvalidTarget)
}

func TestLoadRejectsNonNumericCells(t *testing.T) {
	path := writeFile(t, "x.csv", "id,f1\na,high\n")
	_, err := LoadPredictors(path, DefaultOptions())
	assert.ErrorContains(t, err, `column "f1"`)

	_, err = LoadPredictors(filepath.Join(t.TempDir(), "missing.csv"), DefaultOptions())
	assert.ErrorContains(t, err, "not found")

	_, err = LoadPredictors(writeFile(t, "x.csv", predictorsCSV), Options{IndexColumn: 0, Regex: "("})
	assert.ErrorContains(t, err, "invalid column filter")
}

func TestLoadPredictorsFromWorkbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow(DefaultSheet, "A1", &[]interface{}{"id", "f1", "f2"}))
	require.NoError(t, f.SetSheetRow(DefaultSheet, "A2", &[]interface{}{"r1", 1.5, 2}))
	require.NoError(t, f.SetSheetRow(DefaultSheet, "A3", &[]interface{}{"r2", -1, 0.25}))
	path := filepath.Join(t.TempDir(), "x.xlsx")
	require.NoError(t, f.SaveAs(path))

	p, err := LoadPredictors(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, p.FeatureNames)
	assert.Equal(t, []string{"r1", "r2"}, p.Index)
	assert.Equal(t, 1.5, p.X.At(0, 0))
	assert.Equal(t, 0.25, p.X.At(1, 1))
}
