package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRolloutLifecycle(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRolloutStart()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveRollouts))

	m.RecordRolloutEnd("Rolling", "succeeded", 12.5)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRollouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RolloutsTotal.WithLabelValues("Rolling", "succeeded")))
}

func TestRecordNodeDeploys(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordNodeDeploys(3, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodeDeploysTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeDeploysTotal.WithLabelValues("failed")))

	// Zero counts leave the series untouched
	m.RecordNodeDeploys(0, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodeDeploysTotal.WithLabelValues("success")))
}

func TestRecordRollback(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordRollback("failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollbackTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RollbackTotal.WithLabelValues("success")))
}
