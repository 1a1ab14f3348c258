package store

import (
	"time"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
)

// Record kinds.
const (
	KindAvailability = "availability"
	KindOptimize     = "optimize"
	KindEvaluate     = "evaluate"
)

// Record is the outcome of one API request. Evaluation is set for
// availability and evaluate requests, Search for optimize and evaluate.
type Record struct {
	ID        string
	Kind      string
	Scenario  string
	CreatedAt time.Time

	Parameters types.Parameters
	Costs      *types.CostModel
	Evaluation *compute.Evaluation
	Search     *Search
}

// Search is an optimizer run and the grid it covered.
type Search struct {
	Space  compute.Bounds
	Result compute.Result
}

// Feasible reports whether the record's search found a configuration.
// Records without a search are reported feasible.
func (r *Record) Feasible() bool {
	return r.Search == nil || r.Search.Result.Feasible()
}
