// Package compute evaluates the steady-state reliability of a k-out-of-n
// repairable system and searches for its cheapest configuration.
//
// The pipeline runs leaf to root:
//
//	ComputeRates(Parameters) → Rates         per-state repair (birth) and failure (death) rates
//	Solve(Rates)             → Distribution  stationary distribution over failure counts 0..n
//	Availability(Parameters) → float64       mass of the states with at most n-m failures
//	Optimize(...)            → Result        cheapest (n, k) over a caller-supplied grid
//
// rates.go, stationary.go, availability.go and optimize.go are pure functions.
// engine.go provides the Engine, which memoizes evaluations behind a mutex so a
// long-running server can answer repeated requests without re-solving.
//
// State i counts failed components. A repair moves the chain from i to i-1 at
// rate min(i, k)·gamma; a failure moves it from i to i+1 at the death rate of
// state i. The distribution follows from the detailed-balance recurrence
//
//	pi[i] = pi[i-1] · death[i-1] / birth[i]
//
// with pi[0] = 1 before normalisation. A zero birth rate yields pi[i] = 0.
package compute
