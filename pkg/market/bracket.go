// Package market provides temperature bracket markets and the mapping of
// distribution estimates onto bracket probabilities.
package market

import (
	"errors"
	"fmt"
)

// boundTol is the tolerance used when checking bracket contiguity.
const boundTol = 1e-9

// ErrInvalidBracketSet is returned when a bracket set has gaps, overlaps, or
// inverted bounds. This is a configuration fault: callers must refuse to run.
var ErrInvalidBracketSet = errors.New("market: invalid bracket set")

// Bracket is a half-open temperature interval [Lower, Upper) in °F defining
// one binary market outcome. The first and last brackets of a set are treated
// as open-ended tails and must carry the TailLower/TailUpper sentinel bounds,
// so that standalone containment agrees with Set.IndexFor.
type Bracket struct {
	Lower float64
	Upper float64
}

// Sentinel bounds for tail brackets. No realized temperature reaches them.
const (
	TailLower = -999
	TailUpper = 999
)

// Contains reports whether a realized temperature falls inside the bracket.
// Tail brackets contain everything beyond their finite bound because the
// sentinel side never excludes a real temperature.
func (b Bracket) Contains(temp float64) bool {
	return temp >= b.Lower && temp < b.Upper
}

// Label returns a human-readable description of the bracket within a set.
func (b Bracket) Label(first, last bool) string {
	switch {
	case first:
		return fmt.Sprintf("<%.0f°F", b.Upper)
	case last:
		return fmt.Sprintf("≥%.0f°F", b.Lower)
	default:
		return fmt.Sprintf("%.0f-%.0f°F", b.Lower, b.Upper)
	}
}

// Set is an ordered, contiguous, non-overlapping collection of brackets
// covering the market's temperature domain.
type Set []Bracket

// Validate checks ordering, bound sanity, and contiguity. A set that fails
// validation must never reach the mapper.
func (s Set) Validate() error {
	if len(s) < 2 {
		return fmt.Errorf("%w: need at least 2 brackets, got %d", ErrInvalidBracketSet, len(s))
	}
	for i, b := range s {
		if b.Upper <= b.Lower {
			return fmt.Errorf("%w: bracket %d has upper %.2f <= lower %.2f", ErrInvalidBracketSet, i, b.Upper, b.Lower)
		}
		if i == 0 {
			continue
		}
		diff := b.Lower - s[i-1].Upper
		if diff > boundTol {
			return fmt.Errorf("%w: gap between bracket %d and %d", ErrInvalidBracketSet, i-1, i)
		}
		if diff < -boundTol {
			return fmt.Errorf("%w: overlap between bracket %d and %d", ErrInvalidBracketSet, i-1, i)
		}
	}
	return nil
}

// IndexFor returns the index of the bracket a realized temperature falls in,
// honoring the open tails, or -1 for an empty set.
func (s Set) IndexFor(temp float64) int {
	if len(s) == 0 {
		return -1
	}
	if temp < s[0].Upper {
		return 0
	}
	last := len(s) - 1
	if temp >= s[last].Lower {
		return last
	}
	for i := 1; i < last; i++ {
		if temp >= s[i].Lower && temp < s[i].Upper {
			return i
		}
	}
	return -1
}

// Contains reports whether a realized temperature settles the given bracket YES.
func (s Set) Contains(i int, temp float64) bool {
	return s.IndexFor(temp) == i
}
