package api

import (
	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
)

// EvaluationRequest is the body of every POST endpoint. Costs is required by
// optimize and evaluate; Search is optional and falls back to the server
// defaults.
type EvaluationRequest struct {
	// Name labels the scenario; alerts are keyed by it.
	Name string `json:"name"`

	types.Parameters

	Costs *types.CostModel `json:"costs,omitempty"`

	// Search overrides the derived grid. A non-zero margin replaces the
	// server's; positive bounds replace the derived ends.
	Search *compute.Grid `json:"search,omitempty"`
}

// RecordResponse is one record in GET /api/v1/evaluations, GET
// /api/v1/evaluations/{id} and the POST responses.
type RecordResponse struct {
	ID          string              `json:"id"`
	Kind        string              `json:"kind"`
	Scenario    string              `json:"scenario,omitempty"`
	Parameters  types.Parameters    `json:"parameters"`
	Costs       *types.CostModel    `json:"costs,omitempty"`
	Evaluation  *compute.Evaluation `json:"evaluation,omitempty"`
	Search      *SearchResponse     `json:"search,omitempty"`
	Diagnostics []DiagnosticHint    `json:"diagnostics"`
	CreatedAt   string              `json:"created_at"` // RFC3339
}

// SearchResponse is the optimizer part of a record.
type SearchResponse struct {
	Space    compute.Bounds `json:"space"`
	Feasible bool           `json:"feasible"`
	compute.Result
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State            string        `json:"state"`
	RecordCount      int           `json:"record_count"`
	InfeasibleCount  int           `json:"infeasible_count"`
	AlertCount       int           `json:"alert_count"`
	Engine           compute.Stats `json:"engine"`
	EvaluationsTotal float64       `json:"evaluations_total"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
