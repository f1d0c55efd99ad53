package market

import (
	"errors"
	"fmt"
	"math"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
)

// ProbSumTol is the tolerance within which mapped probabilities must sum to 1.
const ProbSumTol = 1e-6

// ErrCorruptProbabilities reports a negative probability surviving
// renormalization. It indicates invariant corruption and must halt the run.
var ErrCorruptProbabilities = errors.New("market: negative probability after renormalization")

// Probability pairs a bracket with its model and market-implied probabilities.
type Probability struct {
	Bracket Bracket
	Model   float64
	Market  float64
}

// MapEstimate maps a distribution estimate onto a validated bracket set.
// Interior brackets integrate the normal CDF over [Lower, Upper); the first
// and last brackets are one-sided tails. The result is renormalized so model
// probabilities sum to exactly 1.
func MapEstimate(est forecast.Estimate, set Set) ([]Probability, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	probs := make([]Probability, len(set))

	if est.Spread <= 0 {
		// Degenerate distribution: all mass in the bracket containing the mean.
		idx := set.IndexFor(est.Mean)
		for i, b := range set {
			probs[i] = Probability{Bracket: b}
			if i == idx {
				probs[i].Model = 1
			}
		}
		return probs, nil
	}

	last := len(set) - 1
	var sum float64
	for i, b := range set {
		var p float64
		switch i {
		case 0:
			p = normCDF(b.Upper, est.Mean, est.Spread)
		case last:
			p = 1 - normCDF(b.Lower, est.Mean, est.Spread)
		default:
			p = normCDF(b.Upper, est.Mean, est.Spread) - normCDF(b.Lower, est.Mean, est.Spread)
		}
		probs[i] = Probability{Bracket: b, Model: p}
		sum += p
	}

	if sum <= 0 {
		return nil, fmt.Errorf("market: probability mass vanished (mean=%.2f spread=%.2f)", est.Mean, est.Spread)
	}

	// Scale proportionally so the sum is exactly 1; relative ratios are preserved.
	for i := range probs {
		probs[i].Model /= sum
		if probs[i].Model < 0 {
			return nil, fmt.Errorf("%w: bracket %d", ErrCorruptProbabilities, i)
		}
	}

	return probs, nil
}

// normCDF is the normal distribution CDF at x for the given mean and spread.
func normCDF(x, mean, spread float64) float64 {
	return 0.5 * (1 + math.Erf((x-mean)/(spread*math.Sqrt2)))
}
