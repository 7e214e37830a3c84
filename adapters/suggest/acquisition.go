package suggest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Acquisition rates a candidate from the surrogate's predicted loss mean and
// variance. Higher is more promising.
type Acquisition func(mean, variance float64, p AcquisitionParams) float64

// AcquisitionParams tunes the exploration/exploitation balance.
type AcquisitionParams struct {
	BestSoFar float64 // lowest observed loss
	Beta      float64 // UCB exploration weight
	Xi        float64 // minimum improvement for PI and EI
}

// UCB is the confidence bound on the loss, negated so higher is better.
func UCB(mean, variance float64, p AcquisitionParams) float64 {
	return -(mean - p.Beta*math.Sqrt(variance))
}

// ProbabilityOfImprovement is P(loss < BestSoFar - Xi).
func ProbabilityOfImprovement(mean, variance float64, p AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return 0
	}
	return distuv.UnitNormal.CDF((p.BestSoFar - p.Xi - mean) / sigma)
}

// ExpectedImprovement is E[max(0, BestSoFar - Xi - loss)].
func ExpectedImprovement(mean, variance float64, p AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)
	imp := p.BestSoFar - p.Xi - mean
	if sigma == 0 {
		return math.Max(0, imp)
	}
	z := imp / sigma
	return imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// AcquisitionByName maps "ucb", "ei" and "pi" to their functions.
func AcquisitionByName(name string) (Acquisition, error) {
	switch name {
	case "ucb":
		return UCB, nil
	case "ei":
		return ExpectedImprovement, nil
	case "pi":
		return ProbabilityOfImprovement, nil
	default:
		return nil, fmt.Errorf("unknown acquisition %q", name)
	}
}
