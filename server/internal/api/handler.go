package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/metrics"
	"github.com/obsidianstack/repairstack/server/internal/alerts"
	"github.com/obsidianstack/repairstack/server/internal/config"
	"github.com/obsidianstack/repairstack/server/internal/store"
)

// maxBodyBytes caps POST bodies.
const maxBodyBytes = 1 << 20

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store     *store.Store
	engine    *compute.Engine
	alerts    *alerts.Engine
	metrics   *metrics.Recorder
	limiter   *rate.Limiter
	publisher Publisher
	router    chi.Router

	mu     sync.RWMutex
	search config.SearchConfig
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records every evaluation in rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(h *Handler) { h.metrics = rec }
}

// WithRateLimit throttles the POST endpoints with a token bucket shared by all
// clients. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *Handler) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// Publisher receives every record the handler stores.
type Publisher interface {
	Publish(RecordResponse)
}

// WithPublisher hands each stored record to p, after alert evaluation.
func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithSearch sets the search defaults applied to optimize requests.
func WithSearch(cfg config.SearchConfig) Option {
	return func(h *Handler) { h.search = cfg }
}

// New creates a Handler and registers all routes. al may be nil, in which
// case no alert rules are evaluated.
func New(st *store.Store, eng *compute.Engine, al *alerts.Engine, opts ...Option) *Handler {
	h := &Handler{
		store:  st,
		engine: eng,
		alerts: al,
		search: config.Default().Server.Search,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/alerts", h.listAlerts)
		r.Get("/evaluations", h.listEvaluations)
		r.Get("/evaluations/{id}", h.getEvaluation)

		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/availability", h.evaluation(store.KindAvailability))
			r.Post("/optimize", h.evaluation(store.KindOptimize))
			r.Post("/evaluate", h.evaluation(store.KindEvaluate))
		})
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// SetSearch replaces the search defaults. Safe to call while serving.
func (h *Handler) SetSearch(cfg config.SearchConfig) {
	h.mu.Lock()
	h.search = cfg
	h.mu.Unlock()
}

func (h *Handler) searchConfig() config.SearchConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.search
}

// --- middleware -------------------------------------------------------------

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: record counts, cache stats, alert count.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	resp := HealthResponse{
		State:       "ok",
		RecordCount: len(entries),
		Engine:      h.engine.Stats(),
	}
	for _, e := range entries {
		if !e.Record.Feasible() {
			resp.InfeasibleCount++
		}
	}
	if h.alerts != nil {
		resp.AlertCount = h.alerts.Firing()
		if resp.AlertCount > 0 {
			resp.State = "alerting"
		}
	}
	if h.metrics != nil {
		total, err := metrics.Sum(h.metrics.Registry(), "kofn_evaluations_total")
		if err != nil {
			slog.Warn("api: gather metrics failed", "err", err)
		}
		resp.EvaluationsTotal = total
	}
	jsonResp(w, http.StatusOK, resp)
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// listEvaluations returns GET /api/v1/evaluations: live records, newest first.
func (h *Handler) listEvaluations(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildEvaluations(h.store))
}

// getEvaluation returns GET /api/v1/evaluations/{id}.
func (h *Handler) getEvaluation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		jsonErr(w, http.StatusBadRequest, "malformed evaluation id")
		return
	}
	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "evaluation not found")
		return
	}
	jsonResp(w, http.StatusOK, toRecordResponse(e))
}

// evaluation handles the POST endpoints. Every successful request produces a
// record that is stored, checked against the alert rules and returned.
func (h *Handler) evaluation(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EvaluationRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		rec, err := h.run(kind, req)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				slog.Error("api: evaluation failed", "kind", kind, "err", err)
			}
			jsonErr(w, code, err.Error())
			return
		}

		h.store.Put(rec)
		if h.alerts != nil {
			h.alerts.Evaluate(rec)
		}
		e, ok := h.store.Get(rec.ID)
		if !ok {
			e = &store.Entry{Record: rec, StoredAt: rec.CreatedAt}
		}
		resp := toRecordResponse(e)
		if h.publisher != nil {
			h.publisher.Publish(resp)
		}
		w.Header().Set("Location", "/api/v1/evaluations/"+rec.ID)
		jsonResp(w, http.StatusCreated, resp)
	}
}

// run performs the work of one POST request.
func (h *Handler) run(kind string, req EvaluationRequest) (*store.Record, error) {
	rec := &store.Record{
		ID:         uuid.NewString(),
		Kind:       kind,
		Scenario:   req.Name,
		Parameters: req.Parameters,
	}
	cfg := h.searchConfig()
	limits := cfg.Limits()
	if err := limits.Check(req.Parameters); err != nil {
		return nil, err
	}

	if kind == store.KindAvailability || kind == store.KindEvaluate {
		start := time.Now()
		ev, err := h.engine.Evaluate(req.Parameters)
		h.observe(metrics.KindAvailability, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		if h.metrics != nil {
			h.metrics.ObserveAvailability(ev.Availability)
		}
		rec.Evaluation = &ev
	}

	if kind == store.KindOptimize || kind == store.KindEvaluate {
		if req.Costs == nil {
			return nil, fmt.Errorf("%w: costs are required", compute.ErrInvalidParameter)
		}
		space, err := requestGrid(req, cfg).Space(req.Parameters, limits)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		res, err := h.engine.Optimize(req.Parameters, *req.Costs, space, compute.WithMaxGrid(cfg.MaxGrid))
		elapsed := time.Since(start)
		if err != nil {
			h.observe(metrics.KindOptimize, elapsed, err)
			return nil, err
		}
		h.observe(metrics.KindOptimize, elapsed, res.Err())
		if h.metrics != nil {
			h.metrics.ObserveSearch(res)
		}

		costs := *req.Costs
		rec.Costs = &costs
		rec.Search = &store.Search{Space: space.Bounds(), Result: res}
		slog.Debug("api: search finished",
			"id", rec.ID,
			"scenario", req.Name,
			"evaluated", res.Evaluated,
			"skipped", res.Skipped,
			"elapsed", elapsed,
		)
	}
	return rec, nil
}

func (h *Handler) observe(kind string, elapsed time.Duration, err error) {
	if h.metrics != nil {
		h.metrics.ObserveEvaluation(kind, elapsed, err)
	}
}

// requestGrid combines the server margins with the request's overrides.
// A request margin replaces the server's when non-zero; its bounds are
// taken as given.
func requestGrid(req EvaluationRequest, cfg config.SearchConfig) compute.Grid {
	g := compute.Grid{NMargin: cfg.NMargin, KMargin: cfg.KMargin}
	if s := req.Search; s != nil {
		g.NMin, g.NMax, g.KMin, g.KMax = s.NMin, s.NMax, s.KMin, s.KMax
		if s.NMargin != 0 {
			g.NMargin = s.NMargin
		}
		if s.KMargin != 0 {
			g.KMargin = s.KMargin
		}
	}
	return g
}

// --- helpers ----------------------------------------------------------------

// statusFor maps an evaluation error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, compute.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, compute.ErrDegenerateModel):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// BuildEvaluations returns the live records of st, newest first, in their
// JSON representation. WebSocket snapshots use the same list.
func BuildEvaluations(st *store.Store) []RecordResponse {
	entries := st.List()
	out := make([]RecordResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRecordResponse(e))
	}
	return out
}

// toRecordResponse maps a store.Entry to its JSON representation.
func toRecordResponse(e *store.Entry) RecordResponse {
	rec := e.Record
	resp := RecordResponse{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Scenario:    rec.Scenario,
		Parameters:  rec.Parameters,
		Costs:       rec.Costs,
		Evaluation:  rec.Evaluation,
		Diagnostics: computeDiagnostics(rec),
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Search != nil {
		resp.Search = &SearchResponse{
			Space:    rec.Search.Space,
			Feasible: rec.Search.Result.Feasible(),
			Result:   rec.Search.Result,
		}
	}
	return resp
}
