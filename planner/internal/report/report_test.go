package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
)

func sample() Report {
	p := types.Parameters{FailureRate: 0.01, RepairRate: 0.1, Standby: types.Warm,
		Components: 5, Required: 3, RepairCrew: 2}
	return Report{
		Name:       "sample",
		Parameters: p,
		Costs:      &types.CostModel{ComponentCost: 5, RepairmanCost: 10, DowntimeCost: 1000},
		Evaluation: &compute.Evaluation{Parameters: p, Availability: 0.9897468413157445},
		Search: &Search{
			Space: compute.Bounds{NMin: 3, NMax: 104, KMin: 1, KMax: 11, Pairs: 1122},
			Result: compute.Result{
				Best:      &compute.Candidate{Components: 6, RepairCrew: 2, Availability: 0.9972, Cost: 52.78575720354246},
				Evaluated: 1122,
			},
		},
	}
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), FormatText))

	want := "System Availability: 0.9897\n" +
		"Optimal number of components (n): 6\n" +
		"Optimal number of repairmen (k): 2\n" +
		"Minimum total cost: 52.79\n"
	assert.Equal(t, want, buf.String())
}

func TestWrite_TextInfeasible(t *testing.T) {
	r := sample()
	r.Evaluation = nil
	r.Search.Result = compute.Result{Skipped: 12}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatText))
	assert.Equal(t, "Optimal number of components (n): none\n"+
		"Optimal number of repairmen (k): none\n"+
		"Minimum total cost: none\n", buf.String())
}

func TestWrite_TextAvailabilityOnly(t *testing.T) {
	r := sample()
	r.Search = nil

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatText))
	assert.Equal(t, "System Availability: 0.9897\n", buf.String())
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), FormatJSON))

	var got struct {
		Name       string `json:"name"`
		Parameters struct {
			Standby string `json:"standby"`
		} `json:"parameters"`
		Search struct {
			Space  compute.Bounds `json:"space"`
			Result struct {
				Best struct {
					Components int     `json:"components"`
					Cost       float64 `json:"cost"`
				} `json:"best"`
			} `json:"result"`
		} `json:"search"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "sample", got.Name)
	assert.Equal(t, "warm", got.Parameters.Standby)
	assert.Equal(t, 1122, got.Search.Space.Pairs)
	assert.Equal(t, 6, got.Search.Result.Best.Components)
	assert.InDelta(t, 52.78575720354246, got.Search.Result.Best.Cost, 1e-12)
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sample(), Format("xml")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
