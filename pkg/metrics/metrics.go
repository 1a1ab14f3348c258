package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/repairstack/pkg/compute"
)

const namespace = "kofn"

// Evaluation kinds.
const (
	KindAvailability = "availability"
	KindOptimize     = "optimize"
	KindEvaluate     = "evaluate"
)

// Outcome label values.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeDegenerate = "degenerate"
	OutcomeInfeasible = "infeasible"
	OutcomeError      = "error"
)

// Recorder collects planner metrics into a private registry.
type Recorder struct {
	registry *prometheus.Registry

	evaluations  *prometheus.CounterVec
	gridPairs    *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	availability prometheus.Gauge
	minCost      prometheus.Gauge
}

// New returns a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluations performed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		gridPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_pairs_total",
			Help:      "Search grid pairs visited by the optimizer, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one evaluation, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"kind"}),
		availability: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_availability",
			Help:      "Steady-state availability of the most recent successful evaluation.",
		}),
		minCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_min_cost",
			Help:      "Minimum total cost found by the most recent feasible search.",
		}),
	}
	r.registry.MustRegister(r.evaluations, r.gridPairs, r.duration, r.availability, r.minCost)
	return r
}

// Registry returns the underlying registry, usable as a prometheus.Gatherer.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveEvaluation counts one evaluation of the given kind and records its
// duration. The outcome label is derived from err.
func (r *Recorder) ObserveEvaluation(kind string, elapsed time.Duration, err error) {
	r.evaluations.WithLabelValues(kind, Outcome(err)).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveAvailability sets the last availability gauge.
func (r *Recorder) ObserveAvailability(a float64) {
	r.availability.Set(a)
}

// ObserveSearch records the grid counters of an optimizer run and, when the
// search found a configuration, the minimum cost gauge.
func (r *Recorder) ObserveSearch(res compute.Result) {
	r.gridPairs.WithLabelValues("evaluated").Add(float64(res.Evaluated))
	r.gridPairs.WithLabelValues("skipped").Add(float64(res.Skipped))
	if res.Best != nil {
		r.minCost.Set(res.Best.Cost)
	}
}

// WatchEngine exports the cache counters of e. It must be called at most once
// per Recorder.
func (r *Recorder) WatchEngine(e *compute.Engine) {
	r.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cache_hits_total",
			Help:      "Evaluations answered from the engine cache.",
		}, func() float64 { return float64(e.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cache_misses_total",
			Help:      "Evaluations that required solving the chain.",
		}, func() float64 { return float64(e.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cache_entries",
			Help:      "Evaluations currently held by the engine cache.",
		}, func() float64 { return float64(e.Stats().Size) }),
	)
}

// Outcome maps an evaluation error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, compute.ErrNoFeasibleConfiguration):
		return OutcomeInfeasible
	case errors.Is(err, compute.ErrInvalidParameter):
		return OutcomeInvalid
	case errors.Is(err, compute.ErrDegenerateModel):
		return OutcomeDegenerate
	default:
		return OutcomeError
	}
}
