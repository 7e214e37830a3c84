package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodsel/adapters/estimators"
	"gomodsel/adapters/selectors"
	"gomodsel/domain/core"
	"gomodsel/domain/dataset"
	"gomodsel/domain/space"
	apperrors "gomodsel/internal/errors"
	"gomodsel/internal/testkit"
	"gomodsel/ports"
)

func TestBuildCrossProduct(t *testing.T) {
	sels, err := selectors.ByName("IdentitySelection", "FScoreSelection")
	require.NoError(t, err)
	ests, err := estimators.ByName("GNBEstimator", "KNNEstimator", "LogRegEstimator")
	require.NoError(t, err)

	pipes, err := Build(sels, ests)
	require.NoError(t, err)
	require.Len(t, pipes, 6)

	var ids []string
	for _, p := range pipes {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{
		"IdentitySelection__GNBEstimator",
		"IdentitySelection__KNNEstimator",
		"IdentitySelection__LogRegEstimator",
		"FScoreSelection__GNBEstimator",
		"FScoreSelection__KNNEstimator",
		"FScoreSelection__LogRegEstimator",
	}, ids)

	knn := pipes[4].Space()
	_, ok := knn.Get("KNNEstimator__p")
	assert.True(t, ok)
	_, ok = knn.Get("FScoreSelection__num_features")
	assert.True(t, ok)
	assert.Equal(t, 5, knn.Len())
}

func TestBuildRejectsConflicts(t *testing.T) {
	gnb := estimators.NewGNBFactory()
	id := selectors.NewIdentityFactory()

	_, err := Build([]ports.SelectorFactory{id, id}, []ports.EstimatorFactory{gnb})
	assert.True(t, apperrors.IsConfigurationConflict(err))
	assert.Equal(t, apperrors.CodeConfigurationConflict, apperrors.GetCode(err))

	_, err = Build([]ports.SelectorFactory{id}, nil)
	assert.True(t, apperrors.IsConfigurationConflict(err))

	// "A__B" + "c" and "A" + "B__c" both namespace to "A__B__c".
	sel := &testkit.StubSelectorFactory{
		ComponentName: "A__B",
		StubSpace:     space.New().MustAdd(space.NewInt("c", 0, 1, 0)),
	}
	est := &testkit.StubEstimatorFactory{
		ComponentName: "A",
		StubSpace:     space.New().MustAdd(space.NewInt("B__c", 0, 1, 0)),
	}
	_, err = New(sel, est)
	assert.True(t, apperrors.IsConfigurationConflict(err))
	assert.ErrorIs(t, err, core.ErrConfigurationConflict)
}

func TestInstantiateValidatesAndBuildsFreshInstances(t *testing.T) {
	p, err := New(selectors.NewFScoreFactory(), estimators.NewKNNFactory())
	require.NoError(t, err)

	bad := space.Configuration{"FScoreSelection__num_features": 2, "KNNEstimator__n_neighbors": 5, "KNNEstimator__weights": "uniform", "KNNEstimator__metric": "euclidean", "KNNEstimator__p": 2}
	_, err = p.Instantiate(bad, 1)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	ds := testkit.MustGenerate(testkit.DefaultClassificationConfig())
	cfg := space.Configuration{"FScoreSelection__num_features": 2, "KNNEstimator__n_neighbors": 7, "KNNEstimator__weights": "distance", "KNNEstimator__metric": "manhattan"}

	a, err := p.Instantiate(cfg, 1)
	require.NoError(t, err)
	b, err := p.Instantiate(cfg, 1)
	require.NoError(t, err)
	require.NoError(t, a.Fit(ds.X, ds.Y))

	assert.Equal(t, []int{0, 1}, a.Support())
	_, err = b.PredictScore(ds.X)
	assert.ErrorIs(t, err, core.ErrFitFailed, "second instance must not share fitted state")

	labels, err := a.Predict(dataset.Rows(ds.X, []int{0, 1, 2}))
	require.NoError(t, err)
	for _, l := range labels {
		assert.Contains(t, []float64{0, 1}, l)
	}
}

func TestInstantiateDefaults(t *testing.T) {
	p, err := New(selectors.NewIdentityFactory(), estimators.NewGNBFactory())
	require.NoError(t, err)
	assert.Equal(t, 0, p.Space().Len())

	in, err := p.Instantiate(nil, 0)
	require.NoError(t, err)
	ds := testkit.MustGenerate(testkit.DefaultClassificationConfig())
	require.NoError(t, in.Fit(ds.X, ds.Y))
}
