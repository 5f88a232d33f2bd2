// Package stabilize decides when a cluster's telemetry has settled after a
// change, so strategies never hard-code a fixed sleep.
package stabilize

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
)

// Config is the caller-supplied stabilization policy. Delta thresholds are
// percentages relative to the baseline's aggregate averages.
type Config struct {
	CPUDeltaThreshold       float64       `json:"cpu_delta_threshold"`
	MemoryDeltaThreshold    float64       `json:"memory_delta_threshold"`
	LatencyDeltaThreshold   float64       `json:"latency_delta_threshold"`
	PollingInterval         time.Duration `json:"polling_interval"`
	ConsecutiveStableChecks int           `json:"consecutive_stable_checks"`
	MinimumWait             time.Duration `json:"minimum_wait"`
	MaximumWait             time.Duration `json:"maximum_wait"`
}

// DefaultConfig returns a stabilization policy with safe defaults
func DefaultConfig() Config {
	return Config{
		CPUDeltaThreshold:       20,
		MemoryDeltaThreshold:    20,
		LatencyDeltaThreshold:   50,
		PollingInterval:         5 * time.Second,
		ConsecutiveStableChecks: 3,
		MinimumWait:             10 * time.Second,
		MaximumWait:             2 * time.Minute,
	}
}

// Result is the outcome of one stabilization wait
type Result struct {
	Stable                  bool          `json:"stable"`
	Elapsed                 time.Duration `json:"elapsed"`
	ConsecutiveStableChecks int           `json:"consecutive_stable_checks"`
	TotalChecks             int           `json:"total_checks"`
	TimedOut                bool          `json:"timed_out"`
}

// Service polls per-node metrics against a captured baseline until deltas
// fall under the configured thresholds for a run of consecutive checks,
// or the maximum wait elapses.
type Service struct {
	provider domain.MetricsProvider
}

// NewService creates a stabilization service over the given provider
func NewService(provider domain.MetricsProvider) *Service {
	return &Service{provider: provider}
}

// WaitForStabilization blocks until the monitored nodes are stable, the
// maximum wait elapses, or ctx is cancelled. Cancellation returns the
// best-known partial result without an error; callers check Stable.
//
// The consecutive-stable counter is local loop state: each call is
// independently reentrant for concurrent rollouts.
func (s *Service) WaitForStabilization(
	ctx context.Context,
	nodeIDs []string,
	baseline domain.ClusterMetricsSnapshot,
	cfg Config,
) Result {
	start := time.Now()
	deadline := start.Add(cfg.MaximumWait)

	res := Result{}

	// Always honor the minimum wait before the first judgment
	if !sleepCtx(ctx, cfg.MinimumWait) {
		res.Elapsed = time.Since(start)
		return res
	}

	consecutive := 0
	total := 0

	for {
		if !time.Now().Before(deadline) {
			res.Elapsed = time.Since(start)
			res.ConsecutiveStableChecks = consecutive
			res.TotalChecks = total
			res.TimedOut = true
			return res
		}

		total++
		if s.pollStable(ctx, nodeIDs, baseline, cfg) {
			consecutive++
			if consecutive >= cfg.ConsecutiveStableChecks {
				log.Printf("Stabilization reached after %d checks (%v elapsed)",
					total, time.Since(start).Round(time.Millisecond))
				res.Stable = true
				res.Elapsed = time.Since(start)
				res.ConsecutiveStableChecks = consecutive
				res.TotalChecks = total
				return res
			}
		} else {
			// Run-length requirement: any unstable poll resets the run
			consecutive = 0
		}

		if !sleepCtx(ctx, cfg.PollingInterval) {
			res.Elapsed = time.Since(start)
			res.ConsecutiveStableChecks = consecutive
			res.TotalChecks = total
			return res
		}
	}
}

// pollStable fetches one round of node metrics and judges every monitored
// node's every delta against the thresholds. A fetch failure counts as an
// unstable poll.
func (s *Service) pollStable(
	ctx context.Context,
	nodeIDs []string,
	baseline domain.ClusterMetricsSnapshot,
	cfg Config,
) bool {
	snaps, err := s.provider.GetNodesMetrics(ctx, nodeIDs)
	if err != nil {
		log.Printf("Stabilization poll failed: %v", err)
		return false
	}

	for _, snap := range snaps {
		cpu := math.Abs(domain.DeltaPercent(snap.CPUUsagePercent, baseline.AvgCPUUsage))
		mem := math.Abs(domain.DeltaPercent(snap.MemoryUsagePercent, baseline.AvgMemoryUsage))
		lat := math.Abs(domain.DeltaPercent(snap.LatencyMs, baseline.AvgLatencyMs))

		if cpu > cfg.CPUDeltaThreshold || mem > cfg.MemoryDeltaThreshold || lat > cfg.LatencyDeltaThreshold {
			return false
		}
	}
	return true
}

// sleepCtx waits for d, returning false if ctx is cancelled first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
