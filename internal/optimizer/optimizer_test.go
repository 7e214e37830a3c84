package optimizer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gomodsel/adapters/estimators"
	"gomodsel/adapters/scoring"
	"gomodsel/adapters/selectors"
	"gomodsel/adapters/suggest"
	"gomodsel/domain/core"
	"gomodsel/domain/dataset"
	"gomodsel/internal"
	"gomodsel/internal/pipeline"
	"gomodsel/internal/testkit"
	"gomodsel/ports"
)

func request(t *testing.T, p *pipeline.Pipeline) Request {
	t.Helper()
	ds := testkit.MustGenerate(testkit.DefaultClassificationConfig())
	var tr, va []int
	for i := range ds.Y {
		if i%3 == 0 {
			va = append(va, i)
		} else {
			tr = append(tr, i)
		}
	}
	return Request{
		Pipeline:   p,
		Suggester:  suggest.NewRandomFactory(),
		Scorer:     scoring.ROCAUC(),
		XTrain:     dataset.Rows(ds.X, tr),
		YTrain:     dataset.Targets(ds.Y, tr),
		XVal:       dataset.Rows(ds.X, va),
		YVal:       dataset.Targets(ds.Y, va),
		ValRows:    va,
		MaxEvals:   6,
		ErrorScore: math.NaN(),
		Seed:       3,
		Logger:     internal.NewLogger(internal.LogLevelError),
	}
}

func mustPipeline(t *testing.T, sel ports.SelectorFactory, est ports.EstimatorFactory) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(sel, est)
	require.NoError(t, err)
	return p
}

func TestOptimizePicksBestFiniteScore(t *testing.T) {
	req := request(t, mustPipeline(t, selectors.NewFScoreFactory(), estimators.NewKNNFactory()))
	res, err := Optimize(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Trials, 6)
	assert.False(t, res.NoCandidate)
	for _, tr := range res.Trials {
		assert.LessOrEqual(t, tr.Score, res.BestScore)
		assert.Len(t, tr.Predictions, len(req.YVal))
		assert.Equal(t, req.ValRows, tr.Rows)
	}
	assert.Equal(t, res.Trials[res.BestTrial].Config.Key(), res.Best.Key())
	for _, tr := range res.Trials[:res.BestTrial] {
		if tr.Failed {
			continue
		}
		assert.Less(t, tr.Score, res.BestScore, "ties go to the earliest trial")
	}
}

func TestOptimizeAllTrialsFailedIsNoCandidate(t *testing.T) {
	est := &testkit.StubEstimatorFactory{ComponentName: "Broken", FailFit: testkit.AlwaysFail("Broken")}
	req := request(t, mustPipeline(t, selectors.NewFScoreFactory(), est))
	res, err := Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.NoCandidate)
	assert.Equal(t, 6, res.FailedTrials)
	assert.Nil(t, res.Best)
	for _, tr := range res.Trials {
		assert.True(t, tr.Failed)
		assert.True(t, math.IsNaN(tr.Score))
		assert.NotEmpty(t, tr.Reason)
	}
}

func TestOptimizeAbortsOnUnexpectedError(t *testing.T) {
	boom := errors.New("boom")
	est := &testkit.StubEstimatorFactory{
		ComponentName: "Buggy",
		FailFit:       func(_ mat.Matrix, _ []float64) error { return boom },
	}
	req := request(t, mustPipeline(t, selectors.NewIdentityFactory(), est))
	_, err := Optimize(context.Background(), req)
	assert.ErrorIs(t, err, boom)
}

func TestOptimizeCachesRepeatedConfigurations(t *testing.T) {
	est := &testkit.StubEstimatorFactory{ComponentName: "CountingGNB", Inner: estimators.NewGNBFactory()}
	req := request(t, mustPipeline(t, selectors.NewIdentityFactory(), est))
	res, err := Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), est.Fits())
	require.Len(t, res.Trials, 6)
	assert.False(t, res.Trials[0].Cached)
	for _, tr := range res.Trials[1:] {
		assert.True(t, tr.Cached)
		assert.Equal(t, res.Trials[0].Score, tr.Score)
	}
	assert.Equal(t, 0, res.BestTrial)
}

func TestOptimizeIsDeterministic(t *testing.T) {
	p := mustPipeline(t, selectors.NewMutualInformationFactory(), estimators.NewLogRegFactory())
	req := request(t, p)
	req.Suggester = suggest.NewGPFactory(suggest.DefaultGPConfig())
	req.Balance = true

	a, err := Optimize(context.Background(), req)
	require.NoError(t, err)
	b, err := Optimize(context.Background(), req)
	require.NoError(t, err)
	for i := range a.Trials {
		assert.Equal(t, a.Trials[i].Config.Key(), b.Trials[i].Config.Key())
		assert.Equal(t, a.Trials[i].Score, b.Trials[i].Score)
	}
}

func TestOptimizeValidatesRequest(t *testing.T) {
	req := request(t, mustPipeline(t, selectors.NewIdentityFactory(), estimators.NewGNBFactory()))
	req.MaxEvals = 0
	_, err := Optimize(context.Background(), req)
	assert.Error(t, err)

	req = request(t, mustPipeline(t, selectors.NewIdentityFactory(), estimators.NewGNBFactory()))
	req.YTrain = req.YTrain[1:]
	_, err = Optimize(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInputShape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Optimize(ctx, request(t, mustPipeline(t, selectors.NewIdentityFactory(), estimators.NewGNBFactory())))
	assert.ErrorIs(t, err, context.Canceled)
}
