package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamIsReproducible(t *testing.T) {
	a := Stream(3, StageInnerSplit, "LogReg")
	b := Stream(3, StageInnerSplit, "LogReg")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestDeriveSeparatesLabels(t *testing.T) {
	seen := map[int64]string{}
	for _, labels := range [][]string{
		{StageTrial, "a"},
		{StageTrial, "b"},
		{StageSuggest, "a"},
		{StageTrial + "a"},
		{"", StageTrial + "a"},
	} {
		s := Derive(0, labels...)
		assert.GreaterOrEqual(t, s, int64(0))
		_, dup := seen[s]
		assert.False(t, dup, "labels %v collide with %v", labels, seen[s])
		seen[s] = labels[0]
	}
	assert.NotEqual(t, Derive(0, "x"), Derive(1, "x"))
}

func TestFoldKeysAreDistinctStreams(t *testing.T) {
	assert.Equal(t, "trial#2", FoldKey("trial", 2))
	assert.NotEqual(t, Derive(7, FoldKey("trial", 1)), Derive(7, FoldKey("trial", 2)))
}
