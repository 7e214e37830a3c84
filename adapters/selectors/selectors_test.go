package selectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/core"
	"gomodsel/domain/space"
	"gomodsel/internal/testkit"
	"gomodsel/ports"
)

func informative(t *testing.T) (*mat.Dense, []float64) {
	t.Helper()
	ds := testkit.MustGenerate(testkit.ClassificationGeneratorConfig{
		Samples: 150, Features: 8, Informative: 2, Separation: 2.5, PositiveShare: 0.5, Seed: 21,
	})
	return ds.X, ds.Y
}

func TestRankingSelectorsFindInformativeColumns(t *testing.T) {
	X, y := informative(t)
	cases := []struct {
		factory ports.SelectorFactory
		cfg     space.Configuration
	}{
		{NewFScoreFactory(), space.Configuration{"num_features": 2}},
		{NewMutualInformationFactory(), space.Configuration{"num_features": 2, "num_bins": 8}},
		{NewReliefFFactory(), space.Configuration{"num_neighbors": 10, "num_features": 2}},
	}
	for _, tc := range cases {
		t.Run(tc.factory.Name(), func(t *testing.T) {
			sel, err := tc.factory.New(tc.cfg, 0)
			require.NoError(t, err)
			require.NoError(t, sel.Fit(X, y))
			assert.Equal(t, []int{0, 1}, sel.Support())

			out, err := sel.Transform(X)
			require.NoError(t, err)
			r, c := out.Dims()
			assert.Equal(t, 150, r)
			assert.Equal(t, 2, c)
			assert.Equal(t, X.At(3, 1), out.At(3, 1))
		})
	}
}

func TestNumFeaturesClampsToAvailableColumns(t *testing.T) {
	X, y := informative(t)
	sel, err := NewFScoreFactory().New(space.Configuration{"num_features": 50}, 0)
	require.NoError(t, err)
	require.NoError(t, sel.Fit(X, y))
	assert.Len(t, sel.Support(), 8)
}

func TestReliefFClampsNeighbours(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 5,
		0.1, 1,
		0.2, 3,
		1, 2,
		1.1, 4,
		1.2, 0,
	})
	y := []float64{0, 0, 0, 1, 1, 1}
	w, err := ReliefF{Neighbors: 100}.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, w[0], w[1])

	_, err = ReliefF{Neighbors: 10}.Score(mat.NewDense(3, 1, []float64{0, 1, 2}), []float64{0, 0, 1})
	assert.ErrorIs(t, err, core.ErrDegenerateInput)
}

func TestFTestPValues(t *testing.T) {
	X, y := informative(t)
	f, p, err := ANOVAF{}.FTest(X, y)
	require.NoError(t, err)
	assert.Greater(t, f[0], f[5])
	assert.Less(t, p[0], 1e-6)
	for _, v := range p {
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestVarianceThresholdDropsConstantColumns(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 7, 0,
		2, 7, 1,
		3, 7, 0,
		4, 7, 1,
	})
	y := []float64{0, 1, 0, 1}
	sel, err := NewVarianceThresholdFactory().New(nil, 0)
	require.NoError(t, err)
	require.NoError(t, sel.Fit(X, y))
	assert.Equal(t, []int{0, 2}, sel.Support())

	constant := mat.NewDense(3, 1, []float64{2, 2, 2})
	err = sel.Fit(constant, []float64{0, 1, 0})
	assert.ErrorIs(t, err, core.ErrDegenerateInput)
}

func TestTransformChecksState(t *testing.T) {
	sel, err := NewIdentityFactory().New(nil, 0)
	require.NoError(t, err)
	_, err = sel.Transform(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, core.ErrFitFailed)

	require.NoError(t, sel.Fit(mat.NewDense(2, 3, nil), []float64{0, 1}))
	assert.Equal(t, []int{0, 1, 2}, sel.Support())
	_, err = sel.Transform(mat.NewDense(2, 2, nil))
	assert.ErrorIs(t, err, core.ErrInputShape)
}

func TestTopKBreaksTiesByLowerIndex(t *testing.T) {
	assert.Equal(t, []int{1, 3, 0}, topK([]float64{1, 5, 0, 5, 1}, 3))
}
