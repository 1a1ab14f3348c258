package compute

import (
	"fmt"
	"math"

	"github.com/obsidianstack/repairstack/pkg/types"
)

// Limits bounds the work one evaluation or search may request. Zero fields
// select the defaults.
type Limits struct {
	// MaxGrid caps the number of (n, k) pairs of a search.
	MaxGrid int

	// MaxComponents caps n, both for a single evaluation and for every n
	// on a search grid.
	MaxComponents int
}

func (l Limits) withDefaults() Limits {
	if l.MaxGrid <= 0 {
		l.MaxGrid = DefaultMaxGrid
	}
	if l.MaxComponents <= 0 {
		l.MaxComponents = DefaultMaxComponents
	}
	return l
}

// Check rejects p when its component count exceeds the limit.
func (l Limits) Check(p types.Parameters) error {
	l = l.withDefaults()
	if p.Components > l.MaxComponents {
		return fmt.Errorf("compute: %w: components %d exceeds limit %d",
			ErrModelTooLarge, p.Components, l.MaxComponents)
	}
	return nil
}

// Grid describes a search space relative to a scenario. The margins extend
// the scenario's n and k; a positive bound replaces the derived end of its
// axis. Without bounds n runs from m to n+NMargin and k from 1 to k+KMargin.
type Grid struct {
	NMargin int `json:"n_margin,omitempty" yaml:"n_margin"`
	KMargin int `json:"k_margin,omitempty" yaml:"k_margin"`

	NMin int `json:"n_min,omitempty" yaml:"n_min"`
	NMax int `json:"n_max,omitempty" yaml:"n_max"`
	KMin int `json:"k_min,omitempty" yaml:"k_min"`
	KMax int `json:"k_max,omitempty" yaml:"k_max"`
}

// DefaultGrid returns the grid derived with the default margins.
func DefaultGrid() Grid {
	return Grid{NMargin: DefaultNMargin, KMargin: DefaultKMargin}
}

// Validate rejects negative margins and bounds.
func (g Grid) Validate() error {
	if g.NMargin < 0 || g.KMargin < 0 {
		return fmt.Errorf("%w: search margins must be >= 0", ErrInvalidParameter)
	}
	if g.NMin < 0 || g.NMax < 0 || g.KMin < 0 || g.KMax < 0 {
		return fmt.Errorf("%w: search bounds must be >= 0", ErrInvalidParameter)
	}
	return nil
}

// Space resolves g around p. Both axes are sized before anything is
// allocated: a grid with more pairs than lim.MaxGrid, or reaching past
// lim.MaxComponents, fails with ErrSearchTooLarge. A bound that overflows
// int fails with ErrInvalidParameter. An inverted range yields an empty
// axis, which Optimize reports as no feasible configuration.
func (g Grid) Space(p types.Parameters, lim Limits) (Space, error) {
	if err := g.Validate(); err != nil {
		return Space{}, fmt.Errorf("compute: %w", err)
	}
	lim = lim.withDefaults()

	nHi, ok := addInt(p.Components, g.NMargin)
	if !ok {
		return Space{}, fmt.Errorf("compute: %w: n + n_margin overflows", ErrInvalidParameter)
	}
	kHi, ok := addInt(p.RepairCrew, g.KMargin)
	if !ok {
		return Space{}, fmt.Errorf("compute: %w: k + k_margin overflows", ErrInvalidParameter)
	}
	nLo, kLo := p.Required, 1
	if g.NMin > 0 {
		nLo = g.NMin
	}
	if g.NMax > 0 {
		nHi = g.NMax
	}
	if g.KMin > 0 {
		kLo = g.KMin
	}
	if g.KMax > 0 {
		kHi = g.KMax
	}

	nLen, ok := axisLen(nLo, nHi)
	if !ok {
		return Space{}, fmt.Errorf("compute: %w: n range %d..%d", ErrSearchTooLarge, nLo, nHi)
	}
	kLen, ok := axisLen(kLo, kHi)
	if !ok {
		return Space{}, fmt.Errorf("compute: %w: k range %d..%d", ErrSearchTooLarge, kLo, kHi)
	}
	if kLen > 0 && nLen > lim.MaxGrid/kLen {
		return Space{}, fmt.Errorf("compute: %w: %d x %d pairs exceeds limit %d",
			ErrSearchTooLarge, nLen, kLen, lim.MaxGrid)
	}
	if nLen > 0 && nHi > lim.MaxComponents {
		return Space{}, fmt.Errorf("compute: %w: n up to %d exceeds component limit %d",
			ErrSearchTooLarge, nHi, lim.MaxComponents)
	}

	return Space{N: fill(nLo, nLen), K: fill(kLo, kLen)}, nil
}

// axisLen returns the number of integers in lo..hi, 0 when hi < lo. ok is
// false when the count does not fit in an int.
func axisLen(lo, hi int) (n int, ok bool) {
	if hi < lo {
		return 0, true
	}
	d := uint64(hi) - uint64(lo)
	if d >= math.MaxInt {
		return 0, false
	}
	return int(d) + 1, true
}

func addInt(a, b int) (int, bool) {
	if (b > 0 && a > math.MaxInt-b) || (b < 0 && a < math.MinInt-b) {
		return 0, false
	}
	return a + b, true
}

// fill returns lo, lo+1, ..., n values in all; nil when n is 0.
func fill(lo, n int) []int {
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = lo + i
	}
	return out
}
