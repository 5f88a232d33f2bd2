package strategy

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/stabilize"
)

// DegradationThresholds bound the allowed relative increase of each node
// metric over the baseline's aggregate average during a canary rollout
type DegradationThresholds struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	LatencyPercent   float64 `json:"latency_percent"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
}

// DefaultDegradationThresholds returns the default canary health bounds
func DefaultDegradationThresholds() DegradationThresholds {
	return DegradationThresholds{
		CPUPercent:       30,
		MemoryPercent:    30,
		LatencyPercent:   100,
		ErrorRatePercent: 50,
	}
}

// Canary rolls the module out in waves of increasing cumulative node
// percentage, judging telemetry health after each wave against a baseline
// captured once before the first wave. Metrics analysis fails closed: any
// error while fetching or judging counts as degradation.
type Canary struct {
	InitialPercentage   int
	IncrementPercentage int
	WaitDuration        time.Duration
	Thresholds          DegradationThresholds

	// Provider supplies the baseline and the per-wave health judgment
	Provider domain.MetricsProvider

	// Optional adaptive-wait collaborator; when set, the per-wave wait
	// uses resource stabilization instead of WaitDuration
	Stabilizer    *stabilize.Service
	Stabilization stabilize.Config
}

// NewCanary creates a fixed-wait canary strategy
func NewCanary(initialPercentage, incrementPercentage int, waitDuration time.Duration, provider domain.MetricsProvider) *Canary {
	return &Canary{
		InitialPercentage:   initialPercentage,
		IncrementPercentage: incrementPercentage,
		WaitDuration:        waitDuration,
		Thresholds:          DefaultDegradationThresholds(),
		Provider:            provider,
	}
}

// NewAdaptiveCanary creates a canary strategy that waits for resource
// stabilization after each wave
func NewAdaptiveCanary(
	initialPercentage, incrementPercentage int,
	provider domain.MetricsProvider,
	stabilizer *stabilize.Service,
	cfg stabilize.Config,
) *Canary {
	return &Canary{
		InitialPercentage:   initialPercentage,
		IncrementPercentage: incrementPercentage,
		Thresholds:          DefaultDegradationThresholds(),
		Provider:            provider,
		Stabilizer:          stabilizer,
		Stabilization:       cfg,
	}
}

func (s *Canary) Name() string { return "Canary" }

// Deploy executes the canary waves. Waves are strictly sequential; each
// wave deploys only the newly included nodes relative to the previous one.
func (s *Canary) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest, cluster *domain.Cluster) (res *domain.DeploymentResult) {
	res = begin(s.Name(), req, cluster)
	defer guard(res)

	nodes := cluster.Nodes()
	if len(nodes) == 0 {
		return finish(res, false, msgNoNodes)
	}

	// One baseline per Deploy call, captured before the very first wave
	// and reused as the comparison basis for every wave
	baseline, err := s.Provider.GetClusterMetrics(ctx, cluster.Environment)
	if err != nil {
		log.Printf("Canary baseline capture failed: %v", err)
		if ctx.Err() != nil {
			return finish(res, false, msgCancelled)
		}
		return finish(res, false, "Canary metrics degraded")
	}

	counts := waveCounts(len(nodes), s.InitialPercentage, s.IncrementPercentage)

	var deployed []domain.Node
	touched := 0

	for waveNum, count := range counts {
		if ctx.Err() != nil {
			if len(deployed) == 0 {
				return finish(res, false, msgCancelled)
			}
			return failWithRollback(res, deployed, msgCancelled)
		}

		newNodes := nodes[touched:count]
		touched = count

		log.Printf("Canary wave %d: deploying %s %s to %d new nodes (%d total)",
			waveNum+1, req.ModuleName, req.Version, len(newNodes), count)

		outcomes := deployAll(ctx, req, newNodes)
		res.NodeResults = append(res.NodeResults, outcomes...)
		deployed = append(deployed, successes(newNodes, outcomes)...)

		if !allSucceeded(outcomes) {
			return failWithRollback(res, deployed, "Canary deployment failed")
		}

		degraded, cancelled := s.waitAfterWave(ctx, deployed, baseline)
		if cancelled {
			return failWithRollback(res, deployed, msgCancelled)
		}

		if !degraded {
			degraded = s.metricsDegraded(ctx, domain.NodeIDs(deployed), baseline)
		}
		if degraded {
			return failWithRollback(res, deployed, "Canary metrics degraded")
		}
	}

	return finish(res, true, fmt.Sprintf("Successfully deployed to all %d nodes", len(nodes)))
}

// waitAfterWave performs the per-wave wait. A stabilization timeout is a
// degraded signal, identical to a metrics-threshold breach.
func (s *Canary) waitAfterWave(ctx context.Context, deployed []domain.Node, baseline domain.ClusterMetricsSnapshot) (degraded, cancelled bool) {
	if s.Stabilizer == nil {
		if !sleepCtx(ctx, s.WaitDuration) {
			return false, true
		}
		return false, false
	}

	sres := s.Stabilizer.WaitForStabilization(ctx, domain.NodeIDs(deployed), baseline, s.Stabilization)
	if sres.Stable {
		return false, false
	}
	if ctx.Err() != nil {
		return false, true
	}
	return true, false
}

// metricsDegraded fetches the deployed nodes' telemetry and compares each
// metric against the baseline's aggregate average as a percentage delta.
// Exceeding any threshold, or any error along the way, is degradation.
func (s *Canary) metricsDegraded(ctx context.Context, nodeIDs []string, baseline domain.ClusterMetricsSnapshot) bool {
	snaps, err := s.Provider.GetNodesMetrics(ctx, nodeIDs)
	if err != nil {
		log.Printf("Canary metrics fetch failed, treating as degraded: %v", err)
		return true
	}

	th := s.Thresholds
	for _, snap := range snaps {
		switch {
		case domain.DeltaPercent(snap.CPUUsagePercent, baseline.AvgCPUUsage) > th.CPUPercent:
			log.Printf("Canary degraded: node %s CPU %.1f%% vs baseline %.1f%%",
				snap.NodeID, snap.CPUUsagePercent, baseline.AvgCPUUsage)
			return true
		case domain.DeltaPercent(snap.MemoryUsagePercent, baseline.AvgMemoryUsage) > th.MemoryPercent:
			log.Printf("Canary degraded: node %s memory %.1f%% vs baseline %.1f%%",
				snap.NodeID, snap.MemoryUsagePercent, baseline.AvgMemoryUsage)
			return true
		case domain.DeltaPercent(snap.LatencyMs, baseline.AvgLatencyMs) > th.LatencyPercent:
			log.Printf("Canary degraded: node %s latency %.1fms vs baseline %.1fms",
				snap.NodeID, snap.LatencyMs, baseline.AvgLatencyMs)
			return true
		case domain.DeltaPercent(snap.ErrorRate, baseline.AvgErrorRate) > th.ErrorRatePercent:
			log.Printf("Canary degraded: node %s error rate %.3f vs baseline %.3f",
				snap.NodeID, snap.ErrorRate, baseline.AvgErrorRate)
			return true
		}
	}
	return false
}

// waveCounts computes the cumulative node count of each canary wave from
// a strictly increasing percentage sequence capped at 100. Waves that add
// no new nodes are merged into the next one.
func waveCounts(total, initialPercentage, incrementPercentage int) []int {
	if initialPercentage < 1 {
		initialPercentage = 1
	}
	if initialPercentage > 100 {
		initialPercentage = 100
	}
	if incrementPercentage < 1 {
		incrementPercentage = 100
	}

	var counts []int
	prev := 0
	for pct := initialPercentage; ; pct += incrementPercentage {
		if pct > 100 {
			pct = 100
		}
		count := (pct*total + 99) / 100 // ceil
		if count > total {
			count = total
		}
		if count > prev {
			counts = append(counts, count)
			prev = count
		}
		if pct == 100 {
			break
		}
	}
	return counts
}
