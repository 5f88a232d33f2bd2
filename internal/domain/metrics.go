package domain

import "context"

// ClusterMetricsSnapshot is a point-in-time telemetry baseline for one
// environment. Immutable value.
type ClusterMetricsSnapshot struct {
	Environment            Environment `json:"environment"`
	TotalNodes             int         `json:"total_nodes"`
	AvgCPUUsage            float64     `json:"avg_cpu_usage"`
	AvgMemoryUsage         float64     `json:"avg_memory_usage"`
	AvgLatencyMs           float64     `json:"avg_latency_ms"`
	AvgErrorRate           float64     `json:"avg_error_rate"`
	TotalRequestsPerSecond float64     `json:"total_requests_per_second"`
}

// NodeMetricsSnapshot is a per-node telemetry sample. Immutable value.
type NodeMetricsSnapshot struct {
	NodeID             string  `json:"node_id"`
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	LatencyMs          float64 `json:"latency_ms"`
	ErrorRate          float64 `json:"error_rate"`
}

// MetricsProvider is the consumed telemetry contract. GetClusterMetrics
// fails with ErrMetricsUnavailable when the backing system is unreachable;
// callers treat that the same as a degraded-health signal. GetNodesMetrics
// returns one snapshot per requested id; missing nodes are simply absent
// from the result, not an error.
type MetricsProvider interface {
	GetClusterMetrics(ctx context.Context, env Environment) (ClusterMetricsSnapshot, error)
	GetNodesMetrics(ctx context.Context, nodeIDs []string) ([]NodeMetricsSnapshot, error)
}

// DeltaPercent computes the relative change from baseline to current as a
// percentage. A zero baseline with a nonzero current counts as a full
// 100% change.
func DeltaPercent(current, baseline float64) float64 {
	if baseline == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return (current - baseline) / baseline * 100
}
