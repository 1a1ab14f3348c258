package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/obsidianstack/repairstack/pkg/types"
	"github.com/obsidianstack/repairstack/planner/internal/config"
)

const envPrefix = "KOFN"

// Flag names. Each one is also read from KOFN_<NAME> with dashes replaced by
// underscores.
const (
	flagScenario      = "scenario"
	flagName          = "name"
	flagFailureRate   = "failure-rate"
	flagRepairRate    = "repair-rate"
	flagStandby       = "standby"
	flagComponents    = "components"
	flagRequired      = "required"
	flagCrew          = "crew"
	flagComponentCost = "component-cost"
	flagRepairmanCost = "repairman-cost"
	flagDowntimeCost  = "downtime-cost"
	flagNMargin       = "n-margin"
	flagKMargin       = "k-margin"
	flagNMin          = "n-min"
	flagNMax          = "n-max"
	flagKMin          = "k-min"
	flagKMax          = "k-max"
	flagMaxGrid       = "max-grid"
	flagMaxComponents = "max-components"
	flagOutput        = "output"
	flagMetricsFile   = "metrics-file"
	flagLogLevel      = "log-level"
	flagServer        = "server"
	flagAPIKey        = "api-key"
	flagAPIKeyHeader  = "api-key-header"
)

func addFlags(fs *pflag.FlagSet) {
	d := config.Default()
	standby := d.Scenario.Standby

	fs.String(flagScenario, "", "YAML scenario file; flags and KOFN_* variables override its values")
	fs.String(flagName, d.Name, "scenario name used in reports")

	fs.Float64(flagFailureRate, d.Scenario.FailureRate, "per-component failure rate (mu)")
	fs.Float64(flagRepairRate, d.Scenario.RepairRate, "repair rate of one repair unit (gamma)")
	fs.Var(&standby, flagStandby, "standby mode of idle components: warm | cold")
	fs.Int(flagComponents, d.Scenario.Components, "number of components (n)")
	fs.Int(flagRequired, d.Scenario.Required, "components required to function (m)")
	fs.Int(flagCrew, d.Scenario.RepairCrew, "number of repairmen (k)")

	fs.Float64(flagComponentCost, d.Costs.ComponentCost, "cost per component")
	fs.Float64(flagRepairmanCost, d.Costs.RepairmanCost, "cost per repairman")
	fs.Float64(flagDowntimeCost, d.Costs.DowntimeCost, "downtime cost per unit time")

	fs.Int(flagNMargin, d.Search.NMargin, "search n in [m, n+n-margin]")
	fs.Int(flagKMargin, d.Search.KMargin, "search k in [1, k+k-margin]")
	fs.Int(flagNMin, 0, "explicit lower bound of the n range (0 = derived)")
	fs.Int(flagNMax, 0, "explicit upper bound of the n range (0 = derived)")
	fs.Int(flagKMin, 0, "explicit lower bound of the k range (0 = derived)")
	fs.Int(flagKMax, 0, "explicit upper bound of the k range (0 = derived)")
	fs.Int(flagMaxGrid, d.Search.MaxGrid, "maximum number of (n, k) pairs to search (0 = default)")
	fs.Int(flagMaxComponents, d.Search.MaxComponents, "largest n to evaluate or search (0 = default)")

	fs.StringP(flagOutput, "o", "text", "output format: text | json")
	fs.String(flagMetricsFile, "", "write run metrics in Prometheus text format to this file")
	fs.String(flagLogLevel, "warn", "log level: debug | info | warn | error")

	fs.String(flagServer, "", "evaluate on the kofn-server at this URL instead of locally")
	fs.String(flagAPIKey, "", "API key for --server; prefer the KOFN_API_KEY variable")
	fs.String(flagAPIKeyHeader, "x-api-key", "header carrying the API key")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return v, fmt.Errorf("cli: bind flags: %w", err)
	}
	return v, nil
}

// resolve loads the scenario file, if any, and applies flag and environment
// overrides on top.
func resolve(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString(flagScenario); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return applyOverrides(v, cfg)
}

// applyOverrides copies every flag or variable the user set onto a copy of
// cfg and validates the result. Defaults of unset flags never replace values
// from the scenario file.
func applyOverrides(v *viper.Viper, base *config.Config) (*config.Config, error) {
	cfg := *base
	p, c, s := &cfg.Scenario, &cfg.Costs, &cfg.Search

	floats := map[string]*float64{
		flagFailureRate:   &p.FailureRate,
		flagRepairRate:    &p.RepairRate,
		flagComponentCost: &c.ComponentCost,
		flagRepairmanCost: &c.RepairmanCost,
		flagDowntimeCost:  &c.DowntimeCost,
	}
	for key, dst := range floats {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	ints := map[string]*int{
		flagComponents:    &p.Components,
		flagRequired:      &p.Required,
		flagCrew:          &p.RepairCrew,
		flagNMargin:       &s.NMargin,
		flagKMargin:       &s.KMargin,
		flagNMin:          &s.NMin,
		flagNMax:          &s.NMax,
		flagKMin:          &s.KMin,
		flagKMax:          &s.KMax,
		flagMaxGrid:       &s.MaxGrid,
		flagMaxComponents: &s.MaxComponents,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	if v.IsSet(flagStandby) {
		mode, err := types.ParseStandbyMode(v.GetString(flagStandby))
		if err != nil {
			return nil, err
		}
		p.Standby = mode
	}
	if v.IsSet(flagName) {
		cfg.Name = v.GetString(flagName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
