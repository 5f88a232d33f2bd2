package metrics

import (
	"context"
	"testing"

	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProviderClusterMetrics(t *testing.T) {
	p := NewStaticProvider()
	p.SetClusterMetrics(domain.ClusterMetricsSnapshot{
		Environment: domain.EnvQA,
		TotalNodes:  3,
		AvgCPUUsage: 44,
	})

	snap, err := p.GetClusterMetrics(context.Background(), domain.EnvQA)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalNodes)
	assert.Equal(t, 44.0, snap.AvgCPUUsage)

	// Unknown environments answer an empty snapshot, not an error
	snap, err = p.GetClusterMetrics(context.Background(), domain.EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, domain.EnvProduction, snap.Environment)
	assert.Zero(t, snap.TotalNodes)
}

func TestStaticProviderNodeMetrics(t *testing.T) {
	p := NewStaticProvider()
	p.SetNodeMetrics(
		domain.NodeMetricsSnapshot{NodeID: "a", CPUUsagePercent: 50},
		domain.NodeMetricsSnapshot{NodeID: "b", CPUUsagePercent: 60},
	)

	snaps, err := p.GetNodesMetrics(context.Background(), []string{"a", "missing", "b"})
	require.NoError(t, err)
	require.Len(t, snaps, 2, "unknown node ids are skipped")
	assert.Equal(t, "a", snaps[0].NodeID)
	assert.Equal(t, "b", snaps[1].NodeID)
}

func TestStaticProviderFail(t *testing.T) {
	p := NewStaticProvider()
	p.Fail(domain.ErrMetricsUnavailable)

	_, err := p.GetClusterMetrics(context.Background(), domain.EnvQA)
	assert.ErrorIs(t, err, domain.ErrMetricsUnavailable)
	_, err = p.GetNodesMetrics(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrMetricsUnavailable)

	p.Fail(nil)
	_, err = p.GetNodesMetrics(context.Background(), []string{"a"})
	assert.NoError(t, err)
}
