// Package resampling produces the train/held-out index splits used by the
// inner search, the bias-correction bootstrap and the outer repetitions.
//
// All functions are deterministic for a given *rand.Rand state. Held-out
// index sets are returned in ascending order.
package resampling

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gomodsel/domain/core"
)

// Fold is one train/held-out partition of row indices.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits 0..n-1 into k disjoint held-out sets whose union is every index.
// The first n%k folds get one extra row.
func KFold(n, k int, shuffle bool, rng *rand.Rand) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: k-fold needs k >= 2, got %d", core.ErrInputShape, k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: cannot split %d rows into %d folds", core.ErrDegenerateInput, n, k)
	}
	order := identity(n)
	if shuffle {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	assign := make([]int, n)
	pos := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		for i := 0; i < size; i++ {
			assign[order[pos]] = f
			pos++
		}
	}
	return foldsFromAssignment(assign, k), nil
}

// StratifiedKFold splits like KFold while keeping each class's share roughly
// constant across folds. Rows of each class are dealt round-robin, continuing
// the rotation across classes so fold sizes differ by at most one.
func StratifiedKFold(y []float64, k int, shuffle bool, rng *rand.Rand) ([]Fold, error) {
	n := len(y)
	if k < 2 {
		return nil, fmt.Errorf("%w: k-fold needs k >= 2, got %d", core.ErrInputShape, k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: cannot split %d rows into %d folds", core.ErrDegenerateInput, n, k)
	}

	assign := make([]int, n)
	pos := 0
	for _, members := range byClass(y) {
		if shuffle {
			rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		}
		for _, idx := range members {
			assign[idx] = pos % k
			pos++
		}
	}
	return foldsFromAssignment(assign, k), nil
}

// Bootstrap draws n indices with replacement. The out-of-bag set holds every
// index never drawn, ascending.
func Bootstrap(n int, rng *rand.Rand) (inBag, outOfBag []int) {
	inBag = make([]int, n)
	drawn := make([]bool, n)
	for i := range inBag {
		j := rng.Intn(n)
		inBag[i] = j
		drawn[j] = true
	}
	for i, d := range drawn {
		if !d {
			outOfBag = append(outOfBag, i)
		}
	}
	return inBag, outOfBag
}

// BootstrapFolds draws k bootstrap resamples of 0..n-1. Resamples with an
// empty out-of-bag set are redrawn a bounded number of times.
func BootstrapFolds(n, k int, rng *rand.Rand) ([]Fold, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: bootstrap needs at least one resample, got %d", core.ErrInputShape, k)
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: cannot bootstrap %d rows", core.ErrDegenerateInput, n)
	}
	folds := make([]Fold, 0, k)
	for len(folds) < k {
		var train, test []int
		for attempt := 0; attempt < 100 && len(test) == 0; attempt++ {
			train, test = Bootstrap(n, rng)
		}
		if len(test) == 0 {
			return nil, fmt.Errorf("%w: bootstrap produced no out-of-bag rows", core.ErrDegenerateInput)
		}
		folds = append(folds, Fold{Train: train, Test: test})
	}
	return folds, nil
}

// StratifiedHoldout splits rows into train and test with testSize of each
// class held out. Each class with at least two rows contributes at least one
// row to both sides.
func StratifiedHoldout(y []float64, testSize float64, rng *rand.Rand) (Fold, error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return Fold{}, fmt.Errorf("%w: test size must be in (0, 1), got %g", core.ErrInputShape, testSize)
	}
	var fold Fold
	for _, members := range byClass(y) {
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		nTest := int(math.Round(testSize * float64(len(members))))
		if len(members) >= 2 {
			nTest = clamp(nTest, 1, len(members)-1)
		}
		fold.Test = append(fold.Test, members[:nTest]...)
		fold.Train = append(fold.Train, members[nTest:]...)
	}
	if len(fold.Train) == 0 || len(fold.Test) == 0 {
		return Fold{}, fmt.Errorf("%w: holdout of %d rows left an empty side", core.ErrDegenerateInput, len(y))
	}
	sort.Ints(fold.Train)
	sort.Ints(fold.Test)
	return fold, nil
}

// Balance oversamples minority classes at random until every class matches
// the majority count. The original indices come first, in order.
func Balance(indices []int, y []float64, rng *rand.Rand) []int {
	groups := make(map[float64][]int)
	var labels []float64
	for _, idx := range indices {
		label := y[idx]
		if _, ok := groups[label]; !ok {
			labels = append(labels, label)
		}
		groups[label] = append(groups[label], idx)
	}
	sort.Float64s(labels)

	majority := 0
	for _, g := range groups {
		if len(g) > majority {
			majority = len(g)
		}
	}
	out := append([]int(nil), indices...)
	for _, label := range labels {
		g := groups[label]
		for extra := majority - len(g); extra > 0; extra-- {
			out = append(out, g[rng.Intn(len(g))])
		}
	}
	return out
}

// byClass groups row indices by label, classes ascending, rows ascending.
func byClass(y []float64) [][]int {
	groups := make(map[float64][]int)
	var labels []float64
	for i, v := range y {
		if _, ok := groups[v]; !ok {
			labels = append(labels, v)
		}
		groups[v] = append(groups[v], i)
	}
	sort.Float64s(labels)
	out := make([][]int, len(labels))
	for i, l := range labels {
		out[i] = groups[l]
	}
	return out
}

func foldsFromAssignment(assign []int, k int) []Fold {
	folds := make([]Fold, k)
	for idx, f := range assign {
		for g := range folds {
			if g == f {
				folds[g].Test = append(folds[g].Test, idx)
			} else {
				folds[g].Train = append(folds[g].Train, idx)
			}
		}
	}
	return folds
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
