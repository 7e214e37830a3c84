package space

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodsel/domain/core"
)

// knnSpace mirrors a KNN estimator: p only matters for the minkowski metric.
func knnSpace(t *testing.T) *ConfigurationSpace {
	t.Helper()
	s := New()
	require.NoError(t, s.Add(
		NewInt("n_neighbors", 3, 100, 5),
		NewCategorical("metric", []string{"euclidean", "manhattan", "chebyshev", "minkowski"}, "minkowski"),
		NewInt("p", 1, 5, 2),
	))
	require.NoError(t, s.AddCondition(InCondition{Child: "p", Parent: "metric", Values: []string{"minkowski"}}))
	return s
}

func TestSampleOnlyContainsActiveHyperparameters(t *testing.T) {
	s := knnSpace(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		cfg := s.Sample(rng)
		require.NoError(t, s.Validate(cfg), "sampled configuration %s must validate", cfg)
		if cfg["metric"] == "minkowski" {
			assert.True(t, cfg.Has("p"))
		} else {
			assert.False(t, cfg.Has("p"))
		}
	}
}

func TestSampleIsDeterministicForSeed(t *testing.T) {
	s := knnSpace(t)
	a := s.Sample(rand.New(rand.NewSource(42)))
	b := s.Sample(rand.New(rand.NewSource(42)))
	assert.Equal(t, a.Key(), b.Key())
}

func TestValidateRejectsInactiveAndOutOfDomain(t *testing.T) {
	s := knnSpace(t)

	err := s.Validate(Configuration{"n_neighbors": 5, "metric": "euclidean", "p": 2})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	err = s.Validate(Configuration{"n_neighbors": 500, "metric": "euclidean"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	err = s.Validate(Configuration{"n_neighbors": 5, "metric": "minkowski"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration, "active p is missing")

	err = s.Validate(Configuration{"n_neighbors": 5, "metric": "minkowski", "p": 3, "bogus": 1})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	assert.NoError(t, s.Validate(s.Default()))
}

func TestNestedConditionsRespectParentActivity(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(
		NewCategorical("kernel", []string{"linear", "rbf", "poly", "sigmoid"}, "rbf"),
		NewCategorical("gamma", []string{"auto", "value"}, "auto"),
		NewLogFloat("gamma_value", 1e-4, 8, 1),
	))
	require.NoError(t, s.AddCondition(InCondition{Child: "gamma_value", Parent: "gamma", Values: []string{"value"}}))
	require.NoError(t, s.AddCondition(InCondition{Child: "gamma", Parent: "kernel", Values: []string{"rbf", "poly", "sigmoid"}}))

	cfg := Configuration{"kernel": "linear"}
	assert.NoError(t, s.Validate(cfg))
	assert.False(t, s.IsActive("gamma_value", Configuration{"kernel": "linear", "gamma": "value"}))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		assert.NoError(t, s.Validate(s.Sample(rng)))
	}
}

func TestAddConditionRejectsCycles(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(
		NewCategorical("a", []string{"x", "y"}, "x"),
		NewCategorical("b", []string{"x", "y"}, "x"),
	))
	require.NoError(t, s.AddCondition(InCondition{Child: "b", Parent: "a", Values: []string{"x"}}))
	err := s.AddCondition(InCondition{Child: "a", Parent: "b", Values: []string{"x"}})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestMergeNamespacesAndDetectsConflicts(t *testing.T) {
	merged := New()
	require.NoError(t, merged.Merge("KNNEstimator", knnSpace(t)))

	_, ok := merged.Get("KNNEstimator__p")
	assert.True(t, ok)
	require.Len(t, merged.Conditions(), 1)
	assert.Equal(t, "KNNEstimator__metric", merged.Conditions()[0].Parent)

	err := merged.Merge("KNNEstimator", knnSpace(t))
	assert.ErrorIs(t, err, core.ErrConfigurationConflict)
}

func TestConfigurationKeyRoundTrip(t *testing.T) {
	cfg := Configuration{"C": 0.5, "penalty": "l1", "random_state": 12}
	assert.Equal(t, "C=0.5,penalty=l1,random_state=12", cfg.Key())

	parsed, err := ParseKey(cfg.Key())
	require.NoError(t, err)
	assert.Equal(t, cfg.Key(), parsed.Key())

	strip := Configuration{"KNN__p": 2, "KNN__metric": "minkowski", "Other__x": 1}.Strip("KNN")
	assert.Equal(t, Configuration{"p": 2, "metric": "minkowski"}, strip)
}

func TestLogFloatNormalizationIsInverse(t *testing.T) {
	f := NewLogFloat("C", 1e-3, 1e3, 1)
	for _, u := range []float64{0, 0.25, 0.5, 1} {
		v := f.Denormalize(u)
		assert.InDelta(t, u, f.Normalize(v), 1e-9)
		assert.True(t, f.Contains(v))
	}
}
