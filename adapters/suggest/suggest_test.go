package suggest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

func quadraticSpace() *space.ConfigurationSpace {
	return space.New().MustAdd(
		space.NewFloat("x", 0, 1, 0.5),
		space.NewCategorical("kind", []string{"a", "b"}, "a"),
	)
}

// objective peaks at x=0.8 with kind=b.
func objective(cfg space.Configuration) float64 {
	x := cfg.Float("x", 0)
	s := 1 - (x-0.8)*(x-0.8)
	if cfg.StringValue("kind", "") == "a" {
		s -= 0.5
	}
	return s
}

func run(t *testing.T, f ports.SuggesterFactory, seed int64, steps int) []ports.Observation {
	t.Helper()
	s := quadraticSpace()
	sg, err := f.New(s, seed)
	require.NoError(t, err)
	var history []ports.Observation
	for i := 0; i < steps; i++ {
		cfg, err := sg.Suggest(history)
		require.NoError(t, err)
		require.NoError(t, s.Validate(cfg))
		history = append(history, ports.Observation{Config: cfg, Score: objective(cfg)})
	}
	return history
}

func TestSuggestersAreDeterministic(t *testing.T) {
	for _, f := range []ports.SuggesterFactory{NewRandomFactory(), NewGPFactory(DefaultGPConfig())} {
		a := run(t, f, 5, 8)
		b := run(t, f, 5, 8)
		for i := range a {
			assert.Equal(t, a[i].Config.Key(), b[i].Config.Key(), f.Name())
		}
	}
}

func TestGPImprovesOnQuadratic(t *testing.T) {
	history := run(t, NewGPFactory(DefaultGPConfig()), 1, 20)
	best := math.Inf(-1)
	for _, o := range history {
		best = math.Max(best, o.Score)
	}
	assert.Greater(t, best, 0.95)
}

func TestLossesTreatFailuresAsWorst(t *testing.T) {
	history := []ports.Observation{
		{Config: space.Configuration{"x": 0.1}, Score: math.NaN(), Failed: true},
		{Config: space.Configuration{"x": 0.2}, Score: 0.7},
		{Config: space.Configuration{"x": 0.3}, Score: 0.9},
	}
	cfgs, y := losses(history)
	require.Len(t, cfgs, 3)
	assert.Equal(t, []float64{-0.7, -0.7, -0.9}, y)

	cfgs, _ = losses(history[:1])
	assert.Empty(t, cfgs)
}

func TestEmptySpaceYieldsEmptyConfiguration(t *testing.T) {
	sg, err := NewGPFactory(DefaultGPConfig()).New(space.New(), 0)
	require.NoError(t, err)
	cfg, err := sg.Suggest(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg)
}

func TestAcquisitionFunctions(t *testing.T) {
	p := AcquisitionParams{BestSoFar: 0, Beta: 2, Xi: 0}
	assert.Greater(t, ExpectedImprovement(-1, 0.1, p), ExpectedImprovement(1, 0.1, p))
	assert.InDelta(t, 0.5, ProbabilityOfImprovement(0, 1, p), 1e-12)
	assert.Equal(t, 3.0, UCB(-1, 1, p))
	assert.Equal(t, 0.5, ExpectedImprovement(-0.5, 0, p))

	_, err := AcquisitionByName("thompson")
	assert.Error(t, err)
	_, err = ByName("tpe")
	assert.Error(t, err)
}
