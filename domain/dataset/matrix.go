package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
)

// Dataset is a feature matrix with its aligned binary target.
type Dataset struct {
	X            *mat.Dense
	Y            []float64
	FeatureNames []string
	Index        []string
}

// CheckShape validates that X and y can be split: at least one row and
// matching row counts. Row alignment itself is a caller precondition.
func CheckShape(X mat.Matrix, y []float64) error {
	if X == nil {
		return fmt.Errorf("%w: feature matrix is nil", core.ErrInputShape)
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("%w: feature matrix is empty (%dx%d)", core.ErrInputShape, rows, cols)
	}
	if rows != len(y) {
		return fmt.Errorf("%w: %d feature rows vs %d targets", core.ErrInputShape, rows, len(y))
	}
	return nil
}

// CheckBinary ensures the target only holds 0 and 1 and both classes appear.
func CheckBinary(y []float64) error {
	var pos, neg int
	for i, v := range y {
		switch v {
		case 0:
			neg++
		case 1:
			pos++
		default:
			return fmt.Errorf("%w: y[%d]=%g", core.ErrInvalidTarget, i, v)
		}
	}
	if pos == 0 || neg == 0 {
		return fmt.Errorf("%w: only one class present (%d positive, %d negative)", core.ErrInvalidTarget, pos, neg)
	}
	return nil
}

// ClassCounts returns the number of negative and positive labels.
func ClassCounts(y []float64) (neg, pos int) {
	for _, v := range y {
		if v > 0.5 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

// Rows copies the given rows of X into a new matrix; indices may repeat.
func Rows(X mat.Matrix, idx []int) *mat.Dense {
	_, cols := X.Dims()
	if len(idx) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(idx), cols, nil)
	for i, r := range idx {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// Columns copies the given columns of X into a new matrix.
func Columns(X mat.Matrix, cols []int) *mat.Dense {
	rows, _ := X.Dims()
	if len(cols) == 0 || rows == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(rows, len(cols), nil)
	for i := 0; i < rows; i++ {
		for j, c := range cols {
			out.Set(i, j, X.At(i, c))
		}
	}
	return out
}

// Targets gathers y at idx.
func Targets(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}

// IsEmpty reports whether m has no rows or columns. A zero mat.Dense counts as empty.
func IsEmpty(m *mat.Dense) bool {
	if m == nil || m.IsEmpty() {
		return true
	}
	r, c := m.Dims()
	return r == 0 || c == 0
}

// AllFinite reports whether every value is finite.
func AllFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
