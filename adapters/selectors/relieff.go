package selectors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
	"gomodsel/ports"
)

// NewReliefFFactory ranks features by ReliefF weights computed on min-max
// scaled data.
func NewReliefFFactory() ports.SelectorFactory {
	s := space.New().MustAdd(
		space.NewInt("num_neighbors", 10, 100, 20),
		space.NewInt("num_features", 2, 50, 20),
	)
	return &factory{
		name:  "ReliefFSelection",
		space: s,
		build: func(cfg space.Configuration, seed int64) ports.Selector {
			rf := ReliefF{Neighbors: cfg.Int("num_neighbors", 20)}
			return newRanking("ReliefFSelection", rf, cfg.Int("num_features", 20))
		},
	}
}

// ReliefF weights a feature up when it differs between a row and its nearest
// misses and down when it differs from its nearest hits. Neighbors is clamped
// to the smaller class size minus one.
type ReliefF struct {
	Neighbors int
}

func (ReliefF) Name() string { return "relieff" }

func (r ReliefF) Score(X mat.Matrix, y []float64) ([]float64, error) {
	n, cols := X.Dims()
	Z := minMaxScale(X)

	var class [2][]int
	for i, v := range y {
		c := 0
		if v > 0.5 {
			c = 1
		}
		class[c] = append(class[c], i)
	}
	k := clampNeighbors(r.Neighbors, min(len(class[0]), len(class[1]))-1)
	if k < 1 {
		return nil, core.NewDegenerateError("relieff", "each class needs at least two rows")
	}

	type neighbour struct {
		d float64
		i int
	}
	weights := make([]float64, cols)
	a := make([]float64, cols)
	b := make([]float64, cols)
	for i := 0; i < n; i++ {
		mat.Row(a, i, Z)
		own := 0
		if y[i] > 0.5 {
			own = 1
		}
		for c := 0; c < 2; c++ {
			nbrs := make([]neighbour, 0, len(class[c]))
			for _, j := range class[c] {
				if j == i {
					continue
				}
				mat.Row(b, j, Z)
				var d float64
				for f := range a {
					d += math.Abs(a[f] - b[f])
				}
				nbrs = append(nbrs, neighbour{d: d, i: j})
			}
			sort.SliceStable(nbrs, func(p, q int) bool { return nbrs[p].d < nbrs[q].d })
			m := k
			if m > len(nbrs) {
				m = len(nbrs)
			}
			sign := 1.0
			if c == own {
				sign = -1
			}
			for _, nb := range nbrs[:m] {
				for f := 0; f < cols; f++ {
					weights[f] += sign * math.Abs(a[f]-Z.At(nb.i, f)) / float64(n*m)
				}
			}
		}
	}
	return weights, nil
}

func clampNeighbors(k, limit int) int {
	if k > limit {
		return limit
	}
	return k
}
