// Package metrics provides MetricsProvider implementations: a Prometheus
// HTTP API backend for production and an in-memory provider for tests and
// local runs.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
)

// Queries holds the PromQL templates the provider runs. %s is substituted
// with the environment (cluster queries) or nothing (node queries, which
// must carry a node_id label on every series).
type Queries struct {
	NodeCount   string
	AvgCPU      string
	AvgMemory   string
	AvgLatency  string
	AvgErrRate  string
	TotalRPS    string
	NodeCPU     string
	NodeMemory  string
	NodeLatency string
	NodeErrRate string
}

// DefaultQueries returns query templates for the standard node-exporter
// style recording rules
func DefaultQueries() Queries {
	return Queries{
		NodeCount:   `count(up{environment="%s"})`,
		AvgCPU:      `avg(node:cpu_usage:percent{environment="%s"})`,
		AvgMemory:   `avg(node:memory_usage:percent{environment="%s"})`,
		AvgLatency:  `avg(node:request_latency:ms{environment="%s"})`,
		AvgErrRate:  `avg(node:error_rate:ratio{environment="%s"})`,
		TotalRPS:    `sum(node:requests:rate5m{environment="%s"})`,
		NodeCPU:     `node:cpu_usage:percent`,
		NodeMemory:  `node:memory_usage:percent`,
		NodeLatency: `node:request_latency:ms`,
		NodeErrRate: `node:error_rate:ratio`,
	}
}

// PrometheusProvider answers the MetricsProvider contract by querying a
// Prometheus HTTP API
type PrometheusProvider struct {
	endpoint string
	queries  Queries
	client   *http.Client
}

// NewPrometheusProvider creates a provider against the given Prometheus
// base URL
func NewPrometheusProvider(endpoint string) *PrometheusProvider {
	return &PrometheusProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		queries:  DefaultQueries(),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// GetClusterMetrics aggregates the environment-wide averages. Any query
// failure is reported as ErrMetricsUnavailable.
func (p *PrometheusProvider) GetClusterMetrics(ctx context.Context, env domain.Environment) (domain.ClusterMetricsSnapshot, error) {
	snap := domain.ClusterMetricsSnapshot{Environment: env}

	scalars := []struct {
		query string
		dest  *float64
	}{
		{p.queries.AvgCPU, &snap.AvgCPUUsage},
		{p.queries.AvgMemory, &snap.AvgMemoryUsage},
		{p.queries.AvgLatency, &snap.AvgLatencyMs},
		{p.queries.AvgErrRate, &snap.AvgErrorRate},
		{p.queries.TotalRPS, &snap.TotalRequestsPerSecond},
	}

	nodes, err := p.queryScalar(ctx, fmt.Sprintf(p.queries.NodeCount, env))
	if err != nil {
		return snap, fmt.Errorf("%w: %v", domain.ErrMetricsUnavailable, err)
	}
	snap.TotalNodes = int(nodes)

	for _, s := range scalars {
		v, err := p.queryScalar(ctx, fmt.Sprintf(s.query, env))
		if err != nil {
			return snap, fmt.Errorf("%w: %v", domain.ErrMetricsUnavailable, err)
		}
		*s.dest = v
	}

	return snap, nil
}

// GetNodesMetrics returns one snapshot per requested node id present in
// the query results; ids with no series are simply absent.
func (p *PrometheusProvider) GetNodesMetrics(ctx context.Context, nodeIDs []string) ([]domain.NodeMetricsSnapshot, error) {
	byNode := make(map[string]*domain.NodeMetricsSnapshot)
	get := func(id string) *domain.NodeMetricsSnapshot {
		if s, ok := byNode[id]; ok {
			return s
		}
		s := &domain.NodeMetricsSnapshot{NodeID: id}
		byNode[id] = s
		return s
	}

	vectors := []struct {
		query string
		set   func(s *domain.NodeMetricsSnapshot, v float64)
	}{
		{p.queries.NodeCPU, func(s *domain.NodeMetricsSnapshot, v float64) { s.CPUUsagePercent = v }},
		{p.queries.NodeMemory, func(s *domain.NodeMetricsSnapshot, v float64) { s.MemoryUsagePercent = v }},
		{p.queries.NodeLatency, func(s *domain.NodeMetricsSnapshot, v float64) { s.LatencyMs = v }},
		{p.queries.NodeErrRate, func(s *domain.NodeMetricsSnapshot, v float64) { s.ErrorRate = v }},
	}

	for _, vec := range vectors {
		samples, err := p.queryVector(ctx, vec.query)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMetricsUnavailable, err)
		}
		for id, v := range samples {
			vec.set(get(id), v)
		}
	}

	out := make([]domain.NodeMetricsSnapshot, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if s, ok := byNode[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

type promResponse struct {
	Data struct {
		Result []struct {
			Metric map[string]string  `json:"metric"`
			Value  [2]json.RawMessage `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

func (p *PrometheusProvider) query(ctx context.Context, promQL string) (*promResponse, error) {
	queryURL := fmt.Sprintf("%s/api/v1/query?query=%s", p.endpoint, url.QueryEscape(promQL))
	req, err := http.NewRequestWithContext(ctx, "GET", queryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prometheus request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus returned %d", resp.StatusCode)
	}

	var body promResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &body, nil
}

func (p *PrometheusProvider) queryScalar(ctx context.Context, promQL string) (float64, error) {
	body, err := p.query(ctx, promQL)
	if err != nil {
		return 0, err
	}
	if len(body.Data.Result) == 0 {
		return 0, nil
	}
	return parseSampleValue(body.Data.Result[0].Value)
}

// queryVector runs an instant vector query and keys the samples by their
// node_id label
func (p *PrometheusProvider) queryVector(ctx context.Context, promQL string) (map[string]float64, error) {
	body, err := p.query(ctx, promQL)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(body.Data.Result))
	for _, r := range body.Data.Result {
		id := r.Metric["node_id"]
		if id == "" {
			continue
		}
		v, err := parseSampleValue(r.Value)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func parseSampleValue(value [2]json.RawMessage) (float64, error) {
	var valStr string
	if err := json.Unmarshal(value[1], &valStr); err != nil {
		return 0, fmt.Errorf("parse value: %w", err)
	}
	v, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float value: %w", err)
	}
	return v, nil
}
