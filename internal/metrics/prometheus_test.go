package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProm answers the Prometheus instant-query API from a canned map of
// PromQL query -> result JSON fragment
type fakeProm struct {
	results map[string]string
}

func (f *fakeProm) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		result, ok := f.results[r.URL.Query().Get("query")]
		if !ok {
			result = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
	})
}

func scalarResult(v float64) string {
	return fmt.Sprintf(`[{"metric":{},"value":[1756166400,"%g"]}]`, v)
}

func TestGetClusterMetrics(t *testing.T) {
	q := DefaultQueries()
	fake := &fakeProm{results: map[string]string{
		fmt.Sprintf(q.NodeCount, "production"):  scalarResult(12),
		fmt.Sprintf(q.AvgCPU, "production"):     scalarResult(42.5),
		fmt.Sprintf(q.AvgMemory, "production"):  scalarResult(61.2),
		fmt.Sprintf(q.AvgLatency, "production"): scalarResult(18.7),
		fmt.Sprintf(q.AvgErrRate, "production"): scalarResult(0.004),
		fmt.Sprintf(q.TotalRPS, "production"):   scalarResult(1530),
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := NewPrometheusProvider(srv.URL)
	snap, err := p.GetClusterMetrics(context.Background(), domain.EnvProduction)
	require.NoError(t, err)

	assert.Equal(t, domain.EnvProduction, snap.Environment)
	assert.Equal(t, 12, snap.TotalNodes)
	assert.InDelta(t, 42.5, snap.AvgCPUUsage, 0.001)
	assert.InDelta(t, 61.2, snap.AvgMemoryUsage, 0.001)
	assert.InDelta(t, 18.7, snap.AvgLatencyMs, 0.001)
	assert.InDelta(t, 0.004, snap.AvgErrorRate, 0.0001)
	assert.InDelta(t, 1530, snap.TotalRequestsPerSecond, 0.001)
}

func TestGetClusterMetricsEmptyResult(t *testing.T) {
	// No series for the environment: zero values, not an error
	srv := httptest.NewServer((&fakeProm{}).handler())
	defer srv.Close()

	p := NewPrometheusProvider(srv.URL)
	snap, err := p.GetClusterMetrics(context.Background(), domain.EnvQA)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalNodes)
	assert.Zero(t, snap.AvgCPUUsage)
}

func TestGetClusterMetricsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "query engine overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPrometheusProvider(srv.URL)
	_, err := p.GetClusterMetrics(context.Background(), domain.EnvQA)
	assert.ErrorIs(t, err, domain.ErrMetricsUnavailable)
}

func TestGetNodesMetrics(t *testing.T) {
	q := DefaultQueries()
	fake := &fakeProm{results: map[string]string{
		q.NodeCPU: `[
			{"metric":{"node_id":"aaaa1111"},"value":[1756166400,"55.5"]},
			{"metric":{"node_id":"bbbb2222"},"value":[1756166400,"71.0"]}
		]`,
		q.NodeMemory: `[
			{"metric":{"node_id":"aaaa1111"},"value":[1756166400,"40.0"]}
		]`,
		q.NodeLatency: `[
			{"metric":{"node_id":"aaaa1111"},"value":[1756166400,"22.3"]}
		]`,
		q.NodeErrRate: `[
			{"metric":{"node_id":"aaaa1111"},"value":[1756166400,"0.01"]}
		]`,
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := NewPrometheusProvider(srv.URL)
	snaps, err := p.GetNodesMetrics(context.Background(), []string{"aaaa1111", "bbbb2222", "cccc3333"})
	require.NoError(t, err)

	// cccc3333 has no series anywhere, so it is absent rather than zeroed
	require.Len(t, snaps, 2)
	assert.Equal(t, "aaaa1111", snaps[0].NodeID)
	assert.InDelta(t, 55.5, snaps[0].CPUUsagePercent, 0.001)
	assert.InDelta(t, 40.0, snaps[0].MemoryUsagePercent, 0.001)
	assert.Equal(t, "bbbb2222", snaps[1].NodeID)
	assert.InDelta(t, 71.0, snaps[1].CPUUsagePercent, 0.001)
	assert.Zero(t, snaps[1].MemoryUsagePercent)
}

func TestGetNodesMetricsUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	p := NewPrometheusProvider(srv.URL)
	_, err := p.GetNodesMetrics(context.Background(), []string{"aaaa1111"})
	assert.ErrorIs(t, err, domain.ErrMetricsUnavailable)
}

func TestParseSampleValueRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"result":[{"metric":{},"value":[1756166400,"not-a-number"]}]}}`)
	}))
	defer srv.Close()

	p := NewPrometheusProvider(srv.URL)
	_, err := p.GetClusterMetrics(context.Background(), domain.EnvQA)
	assert.Error(t, err)
}
