package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidParameter is wrapped by every validation failure in this module.
var ErrInvalidParameter = errors.New("invalid parameter")

// StandbyMode states whether idle (non-active) components can fail.
type StandbyMode int

// The zero value is deliberately not a valid mode so that an omitted field is
// reported by Validate instead of silently meaning "warm".
const (
	Warm StandbyMode = iota + 1
	Cold
)

// String returns "warm", "cold" or "unknown".
func (s StandbyMode) String() string {
	switch s {
	case Warm:
		return "warm"
	case Cold:
		return "cold"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the defined modes.
func (s StandbyMode) Valid() bool {
	return s == Warm || s == Cold
}

// ParseStandbyMode accepts "warm"/"cold" in any case, plus "yes"/"no" and
// "true"/"false" where yes/true means warm standby.
func ParseStandbyMode(v string) (StandbyMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "warm", "yes", "true":
		return Warm, nil
	case "cold", "no", "false":
		return Cold, nil
	default:
		return 0, fmt.Errorf("%w: standby mode %q: want warm|cold", ErrInvalidParameter, v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s StandbyMode) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: standby mode %d", ErrInvalidParameter, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StandbyMode) UnmarshalText(b []byte) error {
	m, err := ParseStandbyMode(string(b))
	if err != nil {
		return err
	}
	*s = m
	return nil
}

// Set implements pflag.Value so the mode can be bound to a CLI flag.
func (s *StandbyMode) Set(v string) error {
	return s.UnmarshalText([]byte(v))
}

// Type implements pflag.Value.
func (s *StandbyMode) Type() string {
	return "standby"
}

// Parameters describes one k-out-of-n repairable system.
type Parameters struct {
	// FailureRate (mu) is the per-component failure rate.
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"`

	// RepairRate (gamma) is the service rate of one repair unit.
	RepairRate float64 `json:"repair_rate" yaml:"repair_rate"`

	// Standby selects whether idle components are exposed to failure.
	Standby StandbyMode `json:"standby" yaml:"standby"`

	// Components (n) is the total number of components in the pool.
	Components int `json:"components" yaml:"components"`

	// Required (m) is the minimum number of working components for the
	// system to be operational.
	Required int `json:"required" yaml:"required"`

	// RepairCrew (k) is the number of repair units working in parallel.
	RepairCrew int `json:"repair_crew" yaml:"repair_crew"`
}

// Validate checks every constraint on p and returns an error wrapping
// ErrInvalidParameter for the first violation found.
func (p Parameters) Validate() error {
	if err := p.validateRates(); err != nil {
		return err
	}
	if p.Components < 1 {
		return invalid("components must be >= 1, got %d", p.Components)
	}
	if p.Required < 1 || p.Required > p.Components {
		return invalid("required must be in [1, %d], got %d", p.Components, p.Required)
	}
	if p.RepairCrew < 1 {
		return invalid("repair_crew must be >= 1, got %d", p.RepairCrew)
	}
	return nil
}

// ValidateBase checks the fields the optimizer holds fixed across its search
// (rates, standby mode and Required). Components and RepairCrew are ignored.
func (p Parameters) ValidateBase() error {
	if err := p.validateRates(); err != nil {
		return err
	}
	if p.Required < 1 {
		return invalid("required must be >= 1, got %d", p.Required)
	}
	return nil
}

func (p Parameters) validateRates() error {
	if !nonNegative(p.FailureRate) {
		return invalid("failure_rate must be a finite value >= 0, got %v", p.FailureRate)
	}
	if !nonNegative(p.RepairRate) {
		return invalid("repair_rate must be a finite value >= 0, got %v", p.RepairRate)
	}
	if !p.Standby.Valid() {
		return invalid("standby must be warm or cold")
	}
	return nil
}

// MaxFailed returns n - m, the largest number of failed components the
// system tolerates while staying operational.
func (p Parameters) MaxFailed() int {
	return p.Components - p.Required
}

// With returns a copy of p with Components and RepairCrew replaced.
func (p Parameters) With(components, crew int) Parameters {
	p.Components = components
	p.RepairCrew = crew
	return p
}

// CostModel holds the multipliers of the total expected cost
//
//	cost = ComponentCost*n + RepairmanCost*k + DowntimeCost*(1 - availability)
type CostModel struct {
	ComponentCost float64 `json:"component_cost" yaml:"component_cost"`
	RepairmanCost float64 `json:"repairman_cost" yaml:"repairman_cost"`
	DowntimeCost  float64 `json:"downtime_cost" yaml:"downtime_cost"`
}

// Validate checks that every multiplier is finite and non-negative.
func (c CostModel) Validate() error {
	if !nonNegative(c.ComponentCost) {
		return invalid("component_cost must be a finite value >= 0, got %v", c.ComponentCost)
	}
	if !nonNegative(c.RepairmanCost) {
		return invalid("repairman_cost must be a finite value >= 0, got %v", c.RepairmanCost)
	}
	if !nonNegative(c.DowntimeCost) {
		return invalid("downtime_cost must be a finite value >= 0, got %v", c.DowntimeCost)
	}
	return nil
}

// Total returns the expected cost of running n components with k repair
// units at the given availability.
func (c CostModel) Total(n, k int, availability float64) float64 {
	return c.ComponentCost*float64(n) +
		c.RepairmanCost*float64(k) +
		c.DowntimeCost*(1-availability)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameter}, args...)...)
}
