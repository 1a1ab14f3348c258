package compute

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Distribution is the stationary probability of each failure-count state.
// Entries are non-negative and sum to one.
type Distribution []float64

// Solve computes the stationary distribution of the chain described by r.
//
// A state whose birth rate is zero cannot be entered through the recurrence
// and receives zero mass; the zero then carries forward to later states.
// Solve returns ErrInvalidParameter for malformed rate vectors and
// ErrDegenerateModel when the unnormalised mass is zero or not finite.
func Solve(r Rates) (Distribution, error) {
	if err := checkRates(r); err != nil {
		return nil, fmt.Errorf("compute: solve: %w", err)
	}

	n := r.States()
	pi := make(Distribution, n)
	pi[0] = 1
	for i := 1; i < n; i++ {
		if r.Birth[i] > 0 {
			pi[i] = pi[i-1] * r.Death[i-1] / r.Birth[i]
		} else {
			pi[i] = 0
		}
	}

	sum := floats.Sum(pi)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("compute: solve: %w: normalisation sum is %v", ErrDegenerateModel, sum)
	}
	floats.Scale(1/sum, pi)
	return pi, nil
}

func checkRates(r Rates) error {
	if len(r.Birth) == 0 {
		return fmt.Errorf("%w: empty rate vectors", ErrInvalidParameter)
	}
	if len(r.Birth) != len(r.Death) {
		return fmt.Errorf("%w: %d birth rates but %d death rates",
			ErrInvalidParameter, len(r.Birth), len(r.Death))
	}
	for i := range r.Birth {
		if !(r.Birth[i] >= 0) || math.IsInf(r.Birth[i], 0) {
			return fmt.Errorf("%w: birth[%d] = %v", ErrInvalidParameter, i, r.Birth[i])
		}
		if !(r.Death[i] >= 0) || math.IsInf(r.Death[i], 0) {
			return fmt.Errorf("%w: death[%d] = %v", ErrInvalidParameter, i, r.Death[i])
		}
	}
	return nil
}

// Sum returns the total mass of d.
func (d Distribution) Sum() float64 {
	return floats.Sum(d)
}

// Operational returns the mass of states 0..maxFailed inclusive, clamped to
// [0, 1].
func (d Distribution) Operational(maxFailed int) float64 {
	if maxFailed < 0 || len(d) == 0 {
		return 0
	}
	if maxFailed >= len(d) {
		maxFailed = len(d) - 1
	}
	return clamp01(floats.Sum(d[:maxFailed+1]))
}

// Mean returns the expected number of failed components.
func (d Distribution) Mean() float64 {
	var mean float64
	for i, p := range d {
		mean += float64(i) * p
	}
	return mean
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
