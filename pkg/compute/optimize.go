package compute

import (
	"fmt"

	"github.com/obsidianstack/repairstack/pkg/types"
)

// Default search derivation. With these margins the grid is n in [m, n+99]
// and k in [1, k+9].
const (
	DefaultNMargin = 99
	DefaultKMargin = 9

	// DefaultMaxGrid caps the number of (n, k) pairs a single Optimize call
	// may enumerate.
	DefaultMaxGrid = 250_000

	// DefaultMaxComponents caps n for a single evaluation and for the
	// largest n of a search grid. The chain holds n+1 states.
	DefaultMaxComponents = 10_000
)

// Space is the grid of candidate configurations. Optimize walks N in order
// and, for each n, walks K in order.
type Space struct {
	N []int `json:"n"`
	K []int `json:"k"`
}

// Size returns the number of (n, k) pairs in s.
func (s Space) Size() int {
	return len(s.N) * len(s.K)
}

// Bounds summarises a Space by the extremes of each axis.
type Bounds struct {
	NMin  int `json:"n_min"`
	NMax  int `json:"n_max"`
	KMin  int `json:"k_min"`
	KMax  int `json:"k_max"`
	Pairs int `json:"pairs"`
}

// Bounds returns the extremes of s. An empty axis reports zeros.
func (s Space) Bounds() Bounds {
	b := Bounds{Pairs: s.Size()}
	if len(s.N) > 0 {
		b.NMin, b.NMax = minMax(s.N)
	}
	if len(s.K) > 0 {
		b.KMin, b.KMax = minMax(s.K)
	}
	return b
}

func minMax(v []int) (lo, hi int) {
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}

// Candidate is one evaluated configuration.
type Candidate struct {
	Components   int     `json:"components"`
	RepairCrew   int     `json:"repair_crew"`
	Availability float64 `json:"availability"`
	Cost         float64 `json:"cost"`
}

// Result is the outcome of a configuration search.
type Result struct {
	// Best is the cheapest feasible configuration, nil when none exists.
	Best *Candidate `json:"best"`

	// Evaluated counts the pairs whose availability was computed.
	Evaluated int `json:"evaluated"`

	// Skipped counts the pairs rejected as infeasible (n < m or k < 1).
	Skipped int `json:"skipped"`
}

// Feasible reports whether the search found any feasible configuration.
func (r Result) Feasible() bool {
	return r.Best != nil
}

// Err returns ErrNoFeasibleConfiguration when r holds no configuration.
func (r Result) Err() error {
	if r.Best == nil {
		return ErrNoFeasibleConfiguration
	}
	return nil
}

// Evaluator returns the availability of one configuration.
type Evaluator func(types.Parameters) (float64, error)

type options struct {
	maxGrid  int
	evaluate Evaluator
}

// Option configures Optimize.
type Option func(*options)

// WithMaxGrid rejects grids with more than limit pairs. A limit <= 0 disables
// the check.
func WithMaxGrid(limit int) Option {
	return func(o *options) { o.maxGrid = limit }
}

// WithEvaluator replaces the availability function used for each pair.
func WithEvaluator(fn Evaluator) Option {
	return func(o *options) {
		if fn != nil {
			o.evaluate = fn
		}
	}
}

// Optimize searches space for the configuration with the lowest total cost
//
//	cost.ComponentCost·n + cost.RepairmanCost·k + cost.DowntimeCost·(1 - availability)
//
// base supplies the failure and repair rates, the standby mode and m; its
// Components and RepairCrew fields are ignored. Pairs with n < m are skipped.
// On equal cost the pair visited first wins.
//
// A grid without any feasible pair is not an error: the returned Result has a
// nil Best.
func Optimize(base types.Parameters, cost types.CostModel, space Space, opts ...Option) (Result, error) {
	o := options{maxGrid: DefaultMaxGrid, evaluate: Availability}
	for _, opt := range opts {
		opt(&o)
	}

	if err := base.ValidateBase(); err != nil {
		return Result{}, fmt.Errorf("compute: optimize: %w", err)
	}
	if err := cost.Validate(); err != nil {
		return Result{}, fmt.Errorf("compute: optimize: %w", err)
	}
	if o.maxGrid > 0 && space.Size() > o.maxGrid {
		return Result{}, fmt.Errorf("compute: optimize: %w: %d pairs exceeds limit %d",
			ErrSearchTooLarge, space.Size(), o.maxGrid)
	}

	var res Result
	for _, n := range space.N {
		for _, k := range space.K {
			if base.Required > n || k < 1 {
				res.Skipped++
				continue
			}

			availability, err := o.evaluate(base.With(n, k))
			if err != nil {
				return Result{}, fmt.Errorf("compute: optimize: n=%d k=%d: %w", n, k, err)
			}
			res.Evaluated++

			c := cost.Total(n, k, availability)
			if res.Best == nil || c < res.Best.Cost {
				res.Best = &Candidate{
					Components:   n,
					RepairCrew:   k,
					Availability: availability,
					Cost:         c,
				}
			}
		}
	}
	return res, nil
}
