package metrics

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/bessim/core/metrics"
	"github.com/kilianp07/bessim/core/model"
)

func TestPromSink_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	run := coremetrics.RunSummary{Strategy: "cycling_demo", Metrics: model.Metrics{EnergyEfficiency: 0.7, TotalCycles: 2}, Elapsed: time.Millisecond}
	require.NoError(t, sink.RecordRun(run))
	run.CacheHit = true
	require.NoError(t, sink.RecordRun(run))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("cycling_demo", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("cycling_demo", "true")))
	// cache hits are counted but not observed
	assert.Equal(t, 1, testutil.CollectAndCount(sink.efficiency))
	n, err := testutil.GatherAndCount(reg, "bess_simulation_energy_efficiency")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPromSink_OptimizerEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordCandidate(coremetrics.CandidateEvent{Objective: "energy_efficiency", Valid: true}))
	require.NoError(t, sink.RecordCandidate(coremetrics.CandidateEvent{Objective: "energy_efficiency", Valid: false}))
	require.NoError(t, sink.RecordCandidate(coremetrics.CandidateEvent{Objective: "energy_efficiency", Valid: true}))
	require.NoError(t, sink.RecordSearch(coremetrics.SearchEvent{Strategy: "cycling_demo", Objective: "energy_efficiency", Status: "ok", BestScore: 0.42}))
	require.NoError(t, sink.RecordSearch(coremetrics.SearchEvent{Strategy: "cycling_demo", Objective: "energy_efficiency", Status: "exhausted", BestScore: 0}))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.candidates.WithLabelValues("energy_efficiency", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.candidates.WithLabelValues("energy_efficiency", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.searches.WithLabelValues("cycling_demo", "energy_efficiency", "exhausted")))
	assert.Equal(t, 0.42, testutil.ToFloat64(sink.bestScore.WithLabelValues("cycling_demo", "energy_efficiency")))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, a.RecordCandidate(coremetrics.CandidateEvent{Objective: "curtailment_ratio", Valid: true}))
	require.NoError(t, b.RecordCandidate(coremetrics.CandidateEvent{Objective: "curtailment_ratio", Valid: true}))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.candidates.WithLabelValues("curtailment_ratio", "true")))
}

func TestWriteExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordSearch(coremetrics.SearchEvent{Strategy: "solar_smoothing", Objective: "energy_efficiency", Status: "ok"}))

	var buf bytes.Buffer
	require.NoError(t, WriteExposition(&buf, reg))
	out := buf.String()
	assert.Contains(t, out, "# TYPE bess_optimizer_searches_total counter")
	assert.Contains(t, out, `bess_optimizer_searches_total{objective="energy_efficiency",status="ok",strategy="solar_smoothing"} 1`)

	path := t.TempDir() + "/metrics.prom"
	require.NoError(t, WriteExpositionFile(path, reg))
}

func TestPromHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordRun(coremetrics.RunSummary{Strategy: "cycling_demo"}))

	srv := httptest.NewServer(PromHandler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `bess_simulation_runs_total{cache_hit="false",strategy="cycling_demo"} 1`)
}
