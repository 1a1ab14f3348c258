package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
	"github.com/obsidianstack/repairstack/server/internal/store"
)

func baseParams() types.Parameters {
	return types.Parameters{
		FailureRate: 0.01,
		RepairRate:  0.1,
		Standby:     types.Warm,
		Components:  5,
		Required:    3,
		RepairCrew:  2,
	}
}

func evalRec(availability, busy float64) *store.Record {
	p := baseParams()
	return &store.Record{
		Parameters: p,
		Evaluation: &compute.Evaluation{
			Parameters:         p,
			Availability:       availability,
			ExpectedBusyRepair: busy,
		},
	}
}

func keys(hints []DiagnosticHint) []string {
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		out = append(out, h.Key)
	}
	return out
}

func TestDiagnostics_AvailabilityLevel(t *testing.T) {
	tests := []struct {
		availability float64
		want         string
	}{
		{0.5, "critical"},
		{0.95, "warning"},
		{0.9999, "ok"},
	}
	for _, tc := range tests {
		hints := computeDiagnostics(evalRec(tc.availability, 0.1))
		require.Len(t, hints, 1)
		assert.Equal(t, "availability_level", hints[0].Key)
		assert.Equal(t, tc.want, hints[0].Level, "availability %v", tc.availability)
		require.NotNil(t, hints[0].Value)
		assert.Equal(t, tc.availability, *hints[0].Value)
	}
}

func TestDiagnostics_CrewSaturated(t *testing.T) {
	hints := computeDiagnostics(evalRec(0.9999, 1.7))
	assert.Equal(t, []string{"crew_saturated", "availability_level"}, keys(hints))
	assert.InDelta(t, 0.85, *hints[0].Value, 1e-12)
}

func TestDiagnostics_ZeroRates(t *testing.T) {
	rec := evalRec(1, 0)
	rec.Parameters.RepairRate = 0
	assert.Equal(t, []string{"no_repair", "availability_level"}, keys(computeDiagnostics(rec)))

	rec = evalRec(1, 0)
	rec.Parameters.FailureRate = 0
	assert.Equal(t, []string{"no_failures", "availability_level"}, keys(computeDiagnostics(rec)))
}

func TestDiagnostics_Search(t *testing.T) {
	space := compute.Bounds{NMin: 3, NMax: 8, KMin: 1, KMax: 5, Pairs: 30}
	rec := &store.Record{Parameters: baseParams()}

	rec.Search = &store.Search{Space: space}
	hints := computeDiagnostics(rec)
	require.Len(t, hints, 1)
	assert.Equal(t, "infeasible", hints[0].Key)
	assert.Equal(t, "critical", hints[0].Level)

	rec.Search = &store.Search{Space: space, Result: compute.Result{
		Best: &compute.Candidate{Components: 8, RepairCrew: 2},
	}}
	assert.Equal(t, []string{"search_edge"}, keys(computeDiagnostics(rec)))

	rec.Search = &store.Search{Space: space, Result: compute.Result{
		Best: &compute.Candidate{Components: 6, RepairCrew: 5},
	}}
	assert.Equal(t, []string{"search_edge"}, keys(computeDiagnostics(rec)))

	rec.Search = &store.Search{Space: space, Result: compute.Result{
		Best: &compute.Candidate{Components: 6, RepairCrew: 2},
	}}
	hints = computeDiagnostics(rec)
	assert.Equal(t, []string{"all_clear"}, keys(hints))
	assert.Equal(t, "ok", hints[0].Level)
}

func TestDiagnostics_OrderedBySeverity(t *testing.T) {
	rec := evalRec(0.5, 1.9)
	rec.Search = &store.Search{Space: compute.Bounds{NMax: 4, KMax: 2}}
	levels := make([]string, 0)
	for _, h := range computeDiagnostics(rec) {
		levels = append(levels, h.Level)
	}
	assert.Equal(t, []string{"critical", "critical", "warning"}, levels)
}
