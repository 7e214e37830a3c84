package selectors

import (
	"gonum.org/v1/gonum/mat"

	"gomodsel/domain/space"
	"gomodsel/ports"
)

// NewIdentityFactory keeps every feature. It has no hyperparameters.
func NewIdentityFactory() ports.SelectorFactory {
	return &factory{
		name:  "IdentitySelection",
		space: space.New(),
		build: func(space.Configuration, int64) ports.Selector {
			return &Identity{support: support{component: "IdentitySelection"}}
		},
	}
}

type Identity struct {
	support
}

func (s *Identity) Fit(X mat.Matrix, y []float64) error {
	_, cols, err := checkFitInput(s.component, X, y)
	if err != nil {
		return err
	}
	keep := make([]int, cols)
	for j := range keep {
		keep[j] = j
	}
	return s.set(cols, keep)
}
