package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obsidianstack/repairstack/planner/internal/config"
)

// NewRootCommand returns the kofn command tree. Each call builds an
// independent flag set and viper instance.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "kofn",
		Short: "Availability and sizing of repairable k-out-of-n systems",
		Long: `kofn models a pool of n identical components of which m must work, served
by k repair units, as a birth-death chain. It reports the steady-state
availability and searches for the (n, k) with the lowest total cost

  component_cost*n + repairman_cost*k + downtime_cost*(1 - availability)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addFlags(root.PersistentFlags())

	v, bindErr := newViper(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if bindErr != nil {
			return bindErr
		}
		return setupLogging(cmd.ErrOrStderr(), v.GetString(flagLogLevel))
	}
	root.RunE = oneShot(v, stepAvailability|stepOptimize)

	root.AddCommand(
		&cobra.Command{
			Use:   "availability",
			Short: "Print the steady-state availability of one configuration",
			Args:  cobra.NoArgs,
			RunE:  oneShot(v, stepAvailability),
		},
		&cobra.Command{
			Use:   "optimize",
			Short: "Search the (n, k) grid for the minimum total cost",
			Args:  cobra.NoArgs,
			RunE:  oneShot(v, stepOptimize),
		},
		&cobra.Command{
			Use:   "evaluate",
			Short: "Availability of the given configuration and the optimal sizing",
			Args:  cobra.NoArgs,
			RunE:  oneShot(v, stepAvailability|stepOptimize),
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Re-evaluate the --scenario file every time it changes",
			Args:  cobra.NoArgs,
			RunE:  watch(v),
		},
	)
	return root
}

type runE func(cmd *cobra.Command, args []string) error

func oneShot(v *viper.Viper, steps step) runE {
	return func(cmd *cobra.Command, _ []string) error {
		r, err := newRunner(cmd.OutOrStdout(), v)
		if err != nil {
			return err
		}
		cfg, err := resolve(v)
		if err != nil {
			return err
		}
		return r.run(cmd.Context(), cfg, steps)
	}
}

func watch(v *viper.Viper) runE {
	return func(cmd *cobra.Command, _ []string) error {
		path := v.GetString(flagScenario)
		if path == "" {
			return errors.New("watch: --scenario is required")
		}
		r, err := newRunner(cmd.OutOrStdout(), v)
		if err != nil {
			return err
		}
		cfg, err := resolve(v)
		if err != nil {
			return err
		}
		if err := r.run(cmd.Context(), cfg, stepAvailability|stepOptimize); err != nil {
			return err
		}

		return config.Watch(cmd.Context(), path, func(updated *config.Config) {
			cfg, err := applyOverrides(v, updated)
			if err != nil {
				slog.Error("kofn: scenario rejected", "path", path, "err", err)
				return
			}
			if err := r.run(cmd.Context(), cfg, stepAvailability|stepOptimize); err != nil {
				slog.Error("kofn: evaluation failed", "scenario", cfg.Name, "err", err)
			}
		})
	}
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}
