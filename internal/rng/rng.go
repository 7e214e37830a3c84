// Package rng derives independent, reproducible random streams from explicit
// seeds. There is no process-wide random state: every consumer asks for a
// stream keyed by what it is doing and for which unit of work.
package rng

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
)

// Stage names used across the engine.
const (
	StageOuterSplit = "outer-split"
	StageInnerSplit = "inner-split"
	StageBalance    = "balance"
	StageSuggest    = "suggest"
	StageTrial      = "trial"
	StageBootstrap  = "bootstrap"
	StageRefit      = "refit"
)

// Stream returns a generator seeded with Derive(base, labels...).
func Stream(base int64, labels ...string) *rand.Rand {
	return rand.New(rand.NewSource(Derive(base, labels...)))
}

// Derive mixes a base seed with labels into a new seed. Distinct label
// sequences give unrelated streams; equal inputs give equal seeds.
func Derive(base int64, labels ...string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(base, 10)))
	for _, l := range labels {
		h.Write([]byte{0})
		h.Write([]byte(l))
	}
	return int64(mix(h.Sum64()) & math.MaxInt64)
}

// FoldKey renders a fold index as a stream key suffix.
func FoldKey(prefix string, fold int) string {
	return prefix + "#" + strconv.Itoa(fold)
}

// mix is the splitmix64 finaliser.
func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
