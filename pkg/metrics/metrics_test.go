package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("wrapped: %w", compute.ErrInvalidParameter), OutcomeInvalid},
		{compute.ErrSearchTooLarge, OutcomeInvalid},
		{compute.ErrDegenerateModel, OutcomeDegenerate},
		{compute.ErrNoFeasibleConfiguration, OutcomeInfeasible},
		{fmt.Errorf("boom"), OutcomeError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Outcome(tc.err), "%v", tc.err)
	}
}

func TestRecorder_Counters(t *testing.T) {
	r := New()
	r.ObserveEvaluation(KindAvailability, time.Millisecond, nil)
	r.ObserveEvaluation(KindAvailability, time.Millisecond, nil)
	r.ObserveEvaluation(KindOptimize, time.Millisecond, compute.ErrInvalidParameter)
	r.ObserveAvailability(0.98)
	r.ObserveSearch(compute.Result{
		Best:      &compute.Candidate{Components: 6, RepairCrew: 2, Cost: 52.5},
		Evaluated: 30,
		Skipped:   4,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.evaluations.WithLabelValues(KindAvailability, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.evaluations.WithLabelValues(KindOptimize, OutcomeInvalid)))
	assert.Equal(t, 30.0, testutil.ToFloat64(r.gridPairs.WithLabelValues("evaluated")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.gridPairs.WithLabelValues("skipped")))
	assert.Equal(t, 0.98, testutil.ToFloat64(r.availability))
	assert.Equal(t, 52.5, testutil.ToFloat64(r.minCost))

	total, err := Sum(r.Registry(), "kofn_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 3.0, total)

	missing, err := Sum(r.Registry(), "kofn_nope")
	require.NoError(t, err)
	assert.Zero(t, missing)
}

func TestRecorder_InfeasibleSearchKeepsCost(t *testing.T) {
	r := New()
	r.ObserveSearch(compute.Result{Best: &compute.Candidate{Cost: 10}})
	r.ObserveSearch(compute.Result{Skipped: 3})
	assert.Equal(t, 10.0, testutil.ToFloat64(r.minCost))
}

func TestRecorder_WatchEngine(t *testing.T) {
	r := New()
	e := compute.NewEngine(4)
	r.WatchEngine(e)

	p := types.Parameters{FailureRate: 0.01, RepairRate: 0.1, Standby: types.Warm,
		Components: 4, Required: 2, RepairCrew: 1}
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(p)
		require.NoError(t, err)
	}

	hits, err := Sum(r.Registry(), "kofn_engine_cache_hits_total")
	require.NoError(t, err)
	misses, err := Sum(r.Registry(), "kofn_engine_cache_misses_total")
	require.NoError(t, err)
	entries, err := Sum(r.Registry(), "kofn_engine_cache_entries")
	require.NoError(t, err)

	assert.Equal(t, 2.0, hits)
	assert.Equal(t, 1.0, misses)
	assert.Equal(t, 1.0, entries)
}

func TestWriteText(t *testing.T) {
	r := New()
	r.ObserveEvaluation(KindEvaluate, 2*time.Millisecond, nil)
	r.ObserveAvailability(0.5)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r.Registry()))
	out := buf.String()

	for _, want := range []string{
		"# TYPE kofn_evaluations_total counter",
		`kofn_evaluations_total{kind="evaluate",outcome="ok"} 1`,
		"# TYPE kofn_evaluation_duration_seconds histogram",
		"kofn_last_availability 0.5",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kofn.prom")

	r := New()
	r.ObserveAvailability(0.75)
	require.NoError(t, WriteFile(path, r.Registry()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kofn_last_availability 0.75")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "kofn.prom"), New().Registry())
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	r := New()
	r.ObserveAvailability(0.25)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "kofn_last_availability 0.25"))
}
