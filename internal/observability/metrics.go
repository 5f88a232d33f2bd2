package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metric instruments
type Metrics struct {
	RolloutsTotal          *prometheus.CounterVec
	RolloutDurationSeconds prometheus.Histogram
	ActiveRollouts         prometheus.Gauge
	NodeDeploysTotal       *prometheus.CounterVec
	RollbackTotal          *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// NewMetrics registers all metrics against the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments against a specific registerer
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RolloutsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shipshift_rollouts_total",
			Help: "Total number of module rollouts",
		}, []string{"strategy", "status"}),

		RolloutDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shipshift_rollout_duration_seconds",
			Help:    "Duration of module rollouts in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),

		ActiveRollouts: f.NewGauge(prometheus.GaugeOpts{
			Name: "shipshift_active_rollouts",
			Help: "Number of currently running rollouts",
		}),

		NodeDeploysTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shipshift_node_deploys_total",
			Help: "Total per-node deploy outcomes",
		}, []string{"outcome"}),

		RollbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shipshift_rollback_total",
			Help: "Total number of rollbacks",
		}, []string{"status"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shipshift_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shipshift_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		}, []string{"method", "path"}),
	}
}

// RecordRolloutStart increments the active rollouts gauge
func (m *Metrics) RecordRolloutStart() {
	m.ActiveRollouts.Inc()
}

// RecordRolloutEnd records rollout completion
func (m *Metrics) RecordRolloutEnd(strategy, status string, duration float64) {
	m.ActiveRollouts.Dec()
	m.RolloutsTotal.WithLabelValues(strategy, status).Inc()
	m.RolloutDurationSeconds.Observe(duration)
}

// RecordNodeDeploys records per-node deploy outcomes
func (m *Metrics) RecordNodeDeploys(succeeded, failed int) {
	if succeeded > 0 {
		m.NodeDeploysTotal.WithLabelValues("success").Add(float64(succeeded))
	}
	if failed > 0 {
		m.NodeDeploysTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// RecordRollback records a rollback event
func (m *Metrics) RecordRollback(status string) {
	m.RollbackTotal.WithLabelValues(status).Inc()
}
