// Package suggest provides the black-box suggestion algorithms the optimizer
// drives. A suggester only sees past (configuration, score) pairs.
package suggest

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

// ByName resolves a suggester factory: "random", or "gp" (also "bayes") with
// default settings.
func ByName(name string) (ports.SuggesterFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return NewRandomFactory(), nil
	case "gp", "bayes", "":
		return NewGPFactory(DefaultGPConfig()), nil
	default:
		return nil, fmt.Errorf("unknown suggester %q (known: random, gp)", name)
	}
}

type randomFactory struct{}

// NewRandomFactory builds uniform random search over the space.
func NewRandomFactory() ports.SuggesterFactory { return randomFactory{} }

func (randomFactory) Name() string { return "random" }

func (randomFactory) New(s *space.ConfigurationSpace, seed int64) (ports.Suggester, error) {
	return &Random{space: s, rng: rand.New(rand.NewSource(seed))}, nil
}

// Random samples configurations independently of the history.
type Random struct {
	space *space.ConfigurationSpace
	rng   *rand.Rand
}

func (r *Random) Suggest([]ports.Observation) (space.Configuration, error) {
	return r.space.Sample(r.rng), nil
}

// losses converts observations to minimisation targets (-score). Failed or
// non-finite observations take the worst finite loss seen; they are dropped
// when nothing finite exists yet.
func losses(history []ports.Observation) (cfgs []space.Configuration, y []float64) {
	worst := math.Inf(-1)
	for _, o := range history {
		if !o.Failed && !math.IsNaN(o.Score) && !math.IsInf(o.Score, 0) {
			worst = math.Max(worst, -o.Score)
		}
	}
	for _, o := range history {
		loss := -o.Score
		if o.Failed || math.IsNaN(o.Score) || math.IsInf(o.Score, 0) {
			if math.IsInf(worst, -1) {
				continue
			}
			loss = worst
		}
		cfgs = append(cfgs, o.Config)
		y = append(y, loss)
	}
	return cfgs, y
}
