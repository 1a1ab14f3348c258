package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/server/internal/store"
)

// condition is a parsed rule expression.
type condition struct {
	field     string
	op        string
	threshold float64
}

// Supported expressions (field operator value):
//
//	availability < 0.99
//	unavailability > 0.01
//	expected_failed >= 2
//	crew_utilization > 0.8
//	min_cost > 500
//	best_n >= 10
//	best_k > 3
//	best_availability < 0.999
//	feasible == false
var numericFields = map[string]bool{
	"availability":      true,
	"unavailability":    true,
	"expected_failed":   true,
	"crew_utilization":  true,
	"min_cost":          true,
	"best_n":            true,
	"best_k":            true,
	"best_availability": true,
}

// parseCondition validates cond and returns its parsed form.
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "feasible" {
		if op != "==" && op != "!=" {
			return condition{}, fmt.Errorf("condition %q: feasible supports == and != only", cond)
		}
		want, err := strconv.ParseBool(rhs)
		if err != nil {
			return condition{}, fmt.Errorf("condition %q: %w", cond, err)
		}
		c := condition{field: field, op: op}
		if want {
			c.threshold = 1
		}
		return c, nil
	}

	if !numericFields[field] {
		return condition{}, fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", cond, op)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: %w", cond, err)
	}
	return condition{field: field, op: op, threshold: threshold}, nil
}

// eval tests c against rec. ok is false when rec does not carry the field,
// e.g. min_cost on an availability-only record or on an infeasible search.
func (c condition) eval(rec *store.Record) (fires bool, value float64, ok bool) {
	value, ok = fieldValue(c.field, rec)
	if !ok {
		return false, 0, false
	}
	return compareFloat(value, c.op, c.threshold), value, true
}

// fieldValue maps a field name to its value in the record.
func fieldValue(field string, rec *store.Record) (float64, bool) {
	ev := rec.Evaluation
	var best *compute.Candidate
	if rec.Search != nil {
		best = rec.Search.Result.Best
	}

	switch field {
	case "availability":
		if ev != nil {
			return ev.Availability, true
		}
	case "unavailability":
		if ev != nil {
			return 1 - ev.Availability, true
		}
	case "expected_failed":
		if ev != nil {
			return ev.ExpectedFailed, true
		}
	case "crew_utilization":
		if ev != nil && ev.Parameters.RepairCrew > 0 {
			return ev.ExpectedBusyRepair / float64(ev.Parameters.RepairCrew), true
		}
	case "feasible":
		if rec.Search != nil {
			if rec.Search.Result.Feasible() {
				return 1, true
			}
			return 0, true
		}
	case "min_cost":
		if best != nil {
			return best.Cost, true
		}
	case "best_n":
		if best != nil {
			return float64(best.Components), true
		}
	case "best_k":
		if best != nil {
			return float64(best.RepairCrew), true
		}
	case "best_availability":
		if best != nil {
			return best.Availability, true
		}
	}
	return 0, false
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
