package metrics

import (
	"context"
	"sync"

	"github.com/shipshift/orchestrator/internal/domain"
)

// StaticProvider serves pre-loaded snapshots from memory. Used for local
// runs without a telemetry backend and as a scriptable fake in tests.
type StaticProvider struct {
	mu       sync.RWMutex
	clusters map[domain.Environment]domain.ClusterMetricsSnapshot
	nodes    map[string]domain.NodeMetricsSnapshot
	err      error
}

// NewStaticProvider creates an empty provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		clusters: make(map[domain.Environment]domain.ClusterMetricsSnapshot),
		nodes:    make(map[string]domain.NodeMetricsSnapshot),
	}
}

// SetClusterMetrics stores the snapshot returned for its environment
func (p *StaticProvider) SetClusterMetrics(snap domain.ClusterMetricsSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clusters[snap.Environment] = snap
}

// SetNodeMetrics stores per-node snapshots, keyed by node id
func (p *StaticProvider) SetNodeMetrics(snaps ...domain.NodeMetricsSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range snaps {
		p.nodes[s.NodeID] = s
	}
}

// Fail makes every subsequent call return err; nil restores normal behavior
func (p *StaticProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *StaticProvider) GetClusterMetrics(ctx context.Context, env domain.Environment) (domain.ClusterMetricsSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.err != nil {
		return domain.ClusterMetricsSnapshot{}, p.err
	}
	snap, ok := p.clusters[env]
	if !ok {
		return domain.ClusterMetricsSnapshot{Environment: env}, nil
	}
	return snap, nil
}

func (p *StaticProvider) GetNodesMetrics(ctx context.Context, nodeIDs []string) ([]domain.NodeMetricsSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.err != nil {
		return nil, p.err
	}

	out := make([]domain.NodeMetricsSnapshot, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if s, ok := p.nodes[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
