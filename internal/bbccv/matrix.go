package bbccv

import (
	"math"

	"gomodsel/domain/space"
	"gomodsel/internal/optimizer"
	"gomodsel/ports"
)

// Matrix holds out-of-fold predictions: one row per data point held out at
// least once, one column per distinct configuration. NaN marks a
// configuration never evaluated on that point.
type Matrix struct {
	Rows    []int // row ids into the caller's target vector, ascending
	Configs []space.Configuration
	Preds   [][]float64 // [row][column]

	rowPos map[int]int
	colPos map[string]int
	sums   [][]float64
	counts [][]int
}

func newMatrix(rows []int) *Matrix {
	m := &Matrix{Rows: rows, rowPos: make(map[int]int, len(rows)), colPos: make(map[string]int)}
	for i, r := range rows {
		m.rowPos[r] = i
	}
	m.Preds = make([][]float64, len(rows))
	m.sums = make([][]float64, len(rows))
	m.counts = make([][]int, len(rows))
	return m
}

// Cols is the number of configurations.
func (m *Matrix) Cols() int { return len(m.Configs) }

// column returns the index of cfg, appending a new NaN column when unseen.
func (m *Matrix) column(cfg space.Configuration) int {
	key := cfg.Key()
	if c, ok := m.colPos[key]; ok {
		return c
	}
	c := len(m.Configs)
	m.colPos[key] = c
	m.Configs = append(m.Configs, cfg.Clone())
	for i := range m.Preds {
		m.Preds[i] = append(m.Preds[i], math.NaN())
		m.sums[i] = append(m.sums[i], 0)
		m.counts[i] = append(m.counts[i], 0)
	}
	return c
}

// record writes a successful trial's predictions. A point predicted several
// times for one configuration keeps the average.
func (m *Matrix) record(t optimizer.Trial) {
	if t.Failed || t.Cached {
		return
	}
	c := m.column(t.Config)
	for k, r := range t.Rows {
		i, ok := m.rowPos[r]
		if !ok {
			continue
		}
		m.sums[i][c] += t.Predictions[k]
		m.counts[i][c]++
		m.Preds[i][c] = m.sums[i][c] / float64(m.counts[i][c])
	}
}

// covered reports whether column c has a prediction at matrix row i.
func (m *Matrix) covered(i, c int) bool {
	return !math.IsNaN(m.Preds[i][c])
}

// scoreColumn scores column c on the given matrix row positions, skipping
// absent entries. It returns the count of covered positions used.
func (m *Matrix) scoreColumn(c int, positions []int, y []float64, scorer ports.Scorer) (float64, int, error) {
	yt := make([]float64, 0, len(positions))
	ys := make([]float64, 0, len(positions))
	for _, i := range positions {
		if !m.covered(i, c) {
			continue
		}
		yt = append(yt, y[m.Rows[i]])
		ys = append(ys, m.Preds[i][c])
	}
	if len(yt) == 0 {
		return math.NaN(), 0, nil
	}
	s, err := scorer.Score(yt, ys)
	return s, len(yt), err
}

// pooled scores every column on all of its covered rows. Columns the scorer
// rejects score NaN.
func (m *Matrix) pooled(y []float64, scorer ports.Scorer) []float64 {
	all := make([]int, len(m.Rows))
	for i := range all {
		all[i] = i
	}
	out := make([]float64, m.Cols())
	for c := range out {
		s, n, err := m.scoreColumn(c, all, y, scorer)
		if err != nil || n == 0 {
			s = math.NaN()
		}
		out[c] = s
	}
	return out
}

// best returns the index of the highest finite value, lowest index on ties,
// or -1.
func best(values []float64) int {
	idx := -1
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if idx < 0 || v > values[idx] {
			idx = i
		}
	}
	return idx
}
