package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/metrics"
	"github.com/obsidianstack/repairstack/planner/internal/config"
	"github.com/obsidianstack/repairstack/planner/internal/report"
	"github.com/obsidianstack/repairstack/planner/internal/shipper"
)

type step uint8

const (
	stepAvailability step = 1 << iota
	stepOptimize
)

func (s step) has(o step) bool {
	return s&o != 0
}

// kind names the server endpoint and metrics label for a set of steps.
func (s step) kind() string {
	switch s {
	case stepAvailability:
		return shipper.KindAvailability
	case stepOptimize:
		return shipper.KindOptimize
	default:
		return shipper.KindEvaluate
	}
}

// runner evaluates scenarios and renders the results. It is reused across
// reloads in watch mode so the engine cache and metrics accumulate.
// With a client set, scenarios are evaluated by kofn-server instead.
type runner struct {
	out         io.Writer
	format      report.Format
	metricsFile string
	engine      *compute.Engine
	rec         *metrics.Recorder
	client      *shipper.Client
}

func newRunner(out io.Writer, v *viper.Viper) (*runner, error) {
	format, err := report.ParseFormat(v.GetString(flagOutput))
	if err != nil {
		return nil, err
	}
	r := &runner{
		out:         out,
		format:      format,
		metricsFile: v.GetString(flagMetricsFile),
		engine:      compute.NewEngine(0),
		rec:         metrics.New(),
	}
	r.rec.WatchEngine(r.engine)

	if endpoint := v.GetString(flagServer); endpoint != "" {
		r.client = shipper.New(endpoint,
			shipper.WithAPIKey(v.GetString(flagAPIKeyHeader), v.GetString(flagAPIKey)))
	}
	return r, nil
}

func (r *runner) run(ctx context.Context, cfg *config.Config, steps step) error {
	var err error
	if r.client != nil {
		err = r.remote(ctx, cfg, steps)
	} else {
		err = r.evaluate(cfg, steps)
	}
	if r.metricsFile != "" {
		if werr := metrics.WriteFile(r.metricsFile, r.rec.Registry()); werr != nil {
			slog.Error("kofn: write metrics file failed", "path", r.metricsFile, "err", werr)
		}
	}
	return err
}

func (r *runner) evaluate(cfg *config.Config, steps step) error {
	rep := report.Report{Name: cfg.Name, Parameters: cfg.Scenario}

	if steps.has(stepAvailability) {
		start := time.Now()
		ev, err := r.engine.Evaluate(cfg.Scenario)
		r.rec.ObserveEvaluation(metrics.KindAvailability, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("availability: %w", err)
		}
		r.rec.ObserveAvailability(ev.Availability)
		rep.Evaluation = &ev
	}

	if steps.has(stepOptimize) {
		space, err := cfg.Search.Space(cfg.Scenario)
		if err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		start := time.Now()
		res, err := r.engine.Optimize(cfg.Scenario, cfg.Costs, space,
			compute.WithMaxGrid(cfg.Search.MaxGrid))
		elapsed := time.Since(start)
		if err != nil {
			r.rec.ObserveEvaluation(metrics.KindOptimize, elapsed, err)
			return fmt.Errorf("optimize: %w", err)
		}
		r.rec.ObserveEvaluation(metrics.KindOptimize, elapsed, res.Err())
		r.rec.ObserveSearch(res)
		if !res.Feasible() {
			slog.Warn("kofn: no feasible configuration in search space",
				"scenario", cfg.Name, "pairs", space.Size())
		}

		costs := cfg.Costs
		rep.Costs = &costs
		rep.Search = &report.Search{Space: space.Bounds(), Result: res}
		slog.Info("kofn: search finished",
			"scenario", cfg.Name,
			"evaluated", res.Evaluated,
			"skipped", res.Skipped,
			"elapsed", elapsed,
		)
	}

	return report.Write(r.out, rep, r.format)
}

// remote ships cfg to kofn-server and renders the record it returns.
func (r *runner) remote(ctx context.Context, cfg *config.Config, steps step) error {
	kind := steps.kind()
	start := time.Now()
	rec, err := r.client.Ship(ctx, kind, shipper.FromConfig(cfg))
	elapsed := time.Since(start)
	if err != nil {
		r.rec.ObserveEvaluation(kind, elapsed, err)
		return fmt.Errorf("%s: %w", kind, err)
	}

	var outcome error
	if rec.Evaluation != nil {
		r.rec.ObserveAvailability(rec.Evaluation.Availability)
	}
	if rec.Search != nil {
		r.rec.ObserveSearch(rec.Search.Result)
		outcome = rec.Search.Result.Err()
	}
	r.rec.ObserveEvaluation(kind, elapsed, outcome)

	for _, d := range rec.Diagnostics {
		if d.Level == "warning" || d.Level == "critical" {
			slog.Warn("kofn: server diagnostic", "id", rec.ID, "key", d.Key, "level", d.Level, "title", d.Title)
		}
	}
	slog.Info("kofn: evaluated remotely", "id", rec.ID, "kind", kind, "elapsed", elapsed)

	if !steps.has(stepAvailability) {
		rec.Evaluation = nil
	}
	if !steps.has(stepOptimize) {
		rec.Search = nil
	}
	return report.Write(r.out, rec.Report(cfg.Name), r.format)
}
