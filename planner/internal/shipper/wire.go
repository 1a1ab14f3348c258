package shipper

import (
	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
	"github.com/obsidianstack/repairstack/planner/internal/config"
	"github.com/obsidianstack/repairstack/planner/internal/report"
)

// Request is the body of the server's POST endpoints.
type Request struct {
	Name string `json:"name,omitempty"`

	types.Parameters

	Costs *types.CostModel `json:"costs,omitempty"`

	// Search overrides the server's derived grid. The size limits are the
	// server's and cannot be raised by a client.
	Search *compute.Grid `json:"search,omitempty"`
}

// Record is a stored evaluation as returned by the server.
type Record struct {
	ID          string              `json:"id"`
	Kind        string              `json:"kind"`
	Scenario    string              `json:"scenario"`
	Parameters  types.Parameters    `json:"parameters"`
	Costs       *types.CostModel    `json:"costs"`
	Evaluation  *compute.Evaluation `json:"evaluation"`
	Search      *SearchResult       `json:"search"`
	Diagnostics []Diagnostic        `json:"diagnostics"`
	CreatedAt   string              `json:"created_at"`
}

// SearchResult is the optimizer part of a Record.
type SearchResult struct {
	Space    compute.Bounds `json:"space"`
	Feasible bool           `json:"feasible"`
	compute.Result
}

// Diagnostic is one server hint about a record.
type Diagnostic struct {
	Key    string `json:"key"`
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// FromConfig builds the request for a scenario. Costs and search settings are
// always sent; the server ignores them for availability requests.
func FromConfig(cfg *config.Config) Request {
	costs := cfg.Costs
	grid := cfg.Search.Grid
	return Request{
		Name:       cfg.Name,
		Parameters: cfg.Scenario,
		Costs:      &costs,
		Search:     &grid,
	}
}

// Report converts the record into the planner's report.
func (r *Record) Report(name string) report.Report {
	rep := report.Report{
		Name:       name,
		Parameters: r.Parameters,
		Costs:      r.Costs,
		Evaluation: r.Evaluation,
	}
	if r.Search != nil {
		rep.Search = &report.Search{Space: r.Search.Space, Result: r.Search.Result}
	}
	return rep
}
