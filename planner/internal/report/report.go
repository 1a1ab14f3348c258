package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
)

// Format selects how a Report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --output value.
func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown output format %q (want text or json)", v)
	}
}

// Report is the outcome of one planner run. Evaluation and Search are nil
// when the corresponding step was not requested.
type Report struct {
	Name       string              `json:"name,omitempty"`
	Parameters types.Parameters    `json:"parameters"`
	Costs      *types.CostModel    `json:"costs,omitempty"`
	Evaluation *compute.Evaluation `json:"evaluation,omitempty"`
	Search     *Search             `json:"search,omitempty"`
}

// Search describes an optimizer run.
type Search struct {
	Space  compute.Bounds `json:"space"`
	Result compute.Result `json:"result"`
}

// Write renders r to w in format f.
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("report: unknown output format %q", f)
	}
}

func writeText(w io.Writer, r Report) error {
	var b strings.Builder
	if r.Evaluation != nil {
		fmt.Fprintf(&b, "System Availability: %.4f\n", r.Evaluation.Availability)
	}
	if r.Search != nil {
		best := r.Search.Result.Best
		if best == nil {
			b.WriteString("Optimal number of components (n): none\n")
			b.WriteString("Optimal number of repairmen (k): none\n")
			b.WriteString("Minimum total cost: none\n")
		} else {
			fmt.Fprintf(&b, "Optimal number of components (n): %d\n", best.Components)
			fmt.Fprintf(&b, "Optimal number of repairmen (k): %d\n", best.RepairCrew)
			fmt.Fprintf(&b, "Minimum total cost: %.2f\n", best.Cost)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
