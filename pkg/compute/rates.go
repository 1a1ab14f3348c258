package compute

import (
	"fmt"

	"github.com/obsidianstack/repairstack/pkg/types"
)

// Rates holds the transition rates of the birth-death chain, indexed by the
// number of failed components. Both slices have n+1 entries.
type Rates struct {
	// Birth[i] is the repair rate out of state i (towards i-1).
	Birth []float64 `json:"birth"`

	// Death[i] is the failure rate out of state i (towards i+1).
	Death []float64 `json:"death"`
}

// States returns the number of states of the chain (n+1).
func (r Rates) States() int {
	return len(r.Birth)
}

// ComputeRates derives the per-state rates from p.
//
//	birth[i] = min(i, k) · gamma
//	death[i] = (n-i) · mu                       warm standby
//	death[i] = min(n-i, m) · mu  if n-i >= m    cold standby
//	         = 0                 otherwise
//
// Under cold standby only the m active components are exposed to failure; once
// fewer than m remain the system is already down and no further failure is
// counted.
func ComputeRates(p types.Parameters) (Rates, error) {
	if err := p.Validate(); err != nil {
		return Rates{}, fmt.Errorf("compute: rates: %w", err)
	}

	n, m, k := p.Components, p.Required, p.RepairCrew
	r := Rates{
		Birth: make([]float64, n+1),
		Death: make([]float64, n+1),
	}

	for i := 0; i <= n; i++ {
		r.Birth[i] = float64(min(i, k)) * p.RepairRate

		working := n - i
		switch p.Standby {
		case types.Warm:
			r.Death[i] = float64(working) * p.FailureRate
		case types.Cold:
			if working >= m {
				r.Death[i] = float64(min(working, m)) * p.FailureRate
			}
		default:
			return Rates{}, fmt.Errorf("compute: rates: %w: standby mode %v", ErrInvalidParameter, p.Standby)
		}
	}
	return r, nil
}
