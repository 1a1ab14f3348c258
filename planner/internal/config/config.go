package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
)

// Default scenario values, matching the interactive planner's initial form.
const (
	DefaultFailureRate   = 0.01
	DefaultRepairRate    = 0.1
	DefaultComponents    = 5
	DefaultRequired      = 3
	DefaultRepairCrew    = 2
	DefaultComponentCost = 5.0
	DefaultRepairmanCost = 10.0
	DefaultDowntimeCost  = 1000.0
)

// Config is one planning scenario.
type Config struct {
	// Name labels the scenario in reports, metrics and alerts.
	Name string `yaml:"name"`

	Scenario types.Parameters `yaml:"scenario"`
	Costs    types.CostModel  `yaml:"costs"`
	Search   Search           `yaml:"search"`
}

// Search controls the optimizer grid and the size limits of a run.
type Search struct {
	// Margins and explicit bounds of the grid; see compute.Grid.
	compute.Grid `yaml:",inline"`

	// MaxGrid caps the number of (n, k) pairs; 0 selects the default.
	MaxGrid int `yaml:"max_grid"`

	// MaxComponents caps n for the scenario and for the grid; 0 selects
	// the default.
	MaxComponents int `yaml:"max_components"`
}

// Limits returns the size limits of s.
func (s Search) Limits() compute.Limits {
	return compute.Limits{MaxGrid: s.MaxGrid, MaxComponents: s.MaxComponents}
}

// Space returns the grid to search for p.
func (s Search) Space(p types.Parameters) (compute.Space, error) {
	return s.Grid.Space(p, s.Limits())
}

// Default returns the built-in scenario.
func Default() *Config {
	return &Config{
		Name: "default",
		Scenario: types.Parameters{
			FailureRate: DefaultFailureRate,
			RepairRate:  DefaultRepairRate,
			Standby:     types.Warm,
			Components:  DefaultComponents,
			Required:    DefaultRequired,
			RepairCrew:  DefaultRepairCrew,
		},
		Costs: types.CostModel{
			ComponentCost: DefaultComponentCost,
			RepairmanCost: DefaultRepairmanCost,
			DowntimeCost:  DefaultDowntimeCost,
		},
		Search: Search{
			Grid:          compute.DefaultGrid(),
			MaxGrid:       compute.DefaultMaxGrid,
			MaxComponents: compute.DefaultMaxComponents,
		},
	}
}

// Load reads and parses the scenario file at path. Fields absent from the
// file keep their Default() values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the scenario, the cost model and the search settings.
func (c *Config) Validate() error {
	if err := c.Scenario.Validate(); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	if err := c.Costs.Validate(); err != nil {
		return fmt.Errorf("costs: %w", err)
	}

	s := c.Search
	if s.MaxGrid < 0 || s.MaxComponents < 0 {
		return fmt.Errorf("search: limits must be >= 0")
	}
	if err := s.Limits().Check(c.Scenario); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	space, err := s.Space(c.Scenario)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if space.Size() == 0 {
		return fmt.Errorf("search: empty range n=%d..%d k=%d..%d",
			s.NMin, s.NMax, s.KMin, s.KMax)
	}
	return nil
}
