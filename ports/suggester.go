package ports

import (
	"gomodsel/domain/space"
)

// Observation is one finished trial as seen by a suggester.
type Observation struct {
	Config space.Configuration
	Score  float64
	Failed bool
}

// Suggester proposes the next configuration from the history of prior trials.
// Implementations are sequential and not safe for concurrent use.
type Suggester interface {
	Suggest(history []Observation) (space.Configuration, error)
}

// SuggesterFactory creates one seeded suggester per search.
type SuggesterFactory interface {
	Name() string
	New(s *space.ConfigurationSpace, seed int64) (Suggester, error)
}
