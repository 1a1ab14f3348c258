package api

import (
	"fmt"
	"sort"

	"github.com/obsidianstack/repairstack/server/internal/store"
)

// DiagnosticHint is one human-readable insight about an evaluation record.
// Clients show Title as a chip and Detail on click.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// Availability thresholds for the availability_level hint.
const (
	availabilityCritical = 0.9
	availabilityWarning  = 0.99
	crewSaturated        = 0.8
)

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from rec, critical first, then warnings,
// then info. A record with nothing to report gets a single "all_clear" hint.
func computeDiagnostics(rec *store.Record) []DiagnosticHint {
	var hints []DiagnosticHint
	p := rec.Parameters

	// ── Degenerate rates ─────────────────────────────────────────────────────
	if p.RepairRate == 0 && p.FailureRate > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_repair",
			Level: "warning",
			Title: "Repair rate is zero",
			Detail: "Without repair every state past the all-working one receives zero " +
				"mass, so the model reports an availability of 1. A real system with no " +
				"repair eventually loses every component; set a positive repair rate.",
		})
	}
	if p.FailureRate == 0 && p.RepairRate > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_failures",
			Level: "info",
			Title: "Failure rate is zero",
			Detail: "Components never fail, so availability is exactly 1 regardless of the " +
				"repair crew. Any repair unit beyond the first is pure cost.",
		})
	}

	if ev := rec.Evaluation; ev != nil {
		// ── Availability level ───────────────────────────────────────────────
		a := ev.Availability
		var level, title, detail string
		switch {
		case a < availabilityCritical:
			level = "critical"
			title = fmt.Sprintf("%.2f%% availability", a*100)
			detail = fmt.Sprintf(
				"Fewer than %d of %d components are working %.1f%% of the time. "+
					"Add spare components or repair units, or speed up repairs.",
				p.Required, p.Components, (1-a)*100,
			)
		case a < availabilityWarning:
			level = "warning"
			title = fmt.Sprintf("%.2f%% availability", a*100)
			detail = fmt.Sprintf(
				"The system is down about %.2f%% of the time. One more spare or repair "+
					"unit usually moves this above two nines; run an optimization to "+
					"see which is cheaper.",
				(1-a)*100,
			)
		default:
			level = "ok"
			title = fmt.Sprintf("%.4f availability", a)
			detail = fmt.Sprintf(
				"At least %d of %d components are working %.4f%% of the time.",
				p.Required, p.Components, a*100,
			)
		}
		hints = append(hints, DiagnosticHint{Key: "availability_level", Level: level, Title: title, Detail: detail, Value: &a})

		// ── Repair crew saturation ───────────────────────────────────────────
		if k := p.RepairCrew; k > 0 {
			util := ev.ExpectedBusyRepair / float64(k)
			if util >= crewSaturated {
				hints = append(hints, DiagnosticHint{
					Key:   "crew_saturated",
					Level: "warning",
					Title: fmt.Sprintf("Crew %.0f%% busy", util*100),
					Detail: fmt.Sprintf(
						"On average %.2f of %d repair units are at work. Failed components "+
							"queue for repair most of the time; an extra repair unit cuts "+
							"downtime more than an extra spare.",
						ev.ExpectedBusyRepair, k,
					),
					Value: &util,
				})
			}
		}
	}

	if s := rec.Search; s != nil {
		best := s.Result.Best
		if best == nil {
			// ── Infeasible search ────────────────────────────────────────────
			hints = append(hints, DiagnosticHint{
				Key:   "infeasible",
				Level: "critical",
				Title: "No feasible configuration",
				Detail: fmt.Sprintf(
					"None of the %d searched pairs has at least %d components and one "+
						"repair unit. Widen the component span (n_max) or the repair span.",
					s.Space.Pairs, p.Required,
				),
			})
		} else if atEdge(best.Components, s.Space.NMax) || atEdge(best.RepairCrew, s.Space.KMax) {
			// ── Optimum on the search boundary ───────────────────────────────
			hints = append(hints, DiagnosticHint{
				Key:   "search_edge",
				Level: "warning",
				Title: "Optimum on search edge",
				Detail: fmt.Sprintf(
					"The cheapest configuration (n=%d, k=%d) lies on the upper edge of the "+
						"search span (n≤%d, k≤%d). A cheaper one may exist further out; "+
						"increase n_margin or k_margin and search again.",
					best.Components, best.RepairCrew, s.Space.NMax, s.Space.KMax,
				),
			})
		}
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "all_clear",
			Level:  "ok",
			Title:  "Nothing to report",
			Detail: "The record carries no figure that needs attention.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}

func atEdge(v, hi int) bool {
	return v == hi
}
