package strategy

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/stabilize"
)

// Rolling deploys in sequential fixed-size batches, waiting between
// batches and verifying node health before proceeding. Any failure rolls
// back everything deployed so far.
//
// When a stabilization service is configured, the inter-batch wait is
// adaptive: the strategy captures the environment's current metrics as a
// baseline and waits for per-node deltas to settle. Otherwise it sleeps
// HealthCheckDelay.
type Rolling struct {
	MaxConcurrent    int
	HealthCheckDelay time.Duration

	// Optional adaptive-wait collaborators; both must be set to enable
	// stabilization-based waiting
	Provider      domain.MetricsProvider
	Stabilizer    *stabilize.Service
	Stabilization stabilize.Config
}

// NewRolling creates a fixed-wait rolling strategy
func NewRolling(maxConcurrent int, healthCheckDelay time.Duration) *Rolling {
	return &Rolling{MaxConcurrent: maxConcurrent, HealthCheckDelay: healthCheckDelay}
}

// NewAdaptiveRolling creates a rolling strategy that waits for resource
// stabilization between batches
func NewAdaptiveRolling(
	maxConcurrent int,
	provider domain.MetricsProvider,
	stabilizer *stabilize.Service,
	cfg stabilize.Config,
) *Rolling {
	return &Rolling{
		MaxConcurrent: maxConcurrent,
		Provider:      provider,
		Stabilizer:    stabilizer,
		Stabilization: cfg,
	}
}

func (s *Rolling) Name() string { return "Rolling" }

func (s *Rolling) adaptive() bool {
	return s.Stabilizer != nil && s.Provider != nil
}

// Deploy rolls the module out batch by batch. Batches are strictly
// sequential: a later batch never starts before the previous one's
// deploy-wait-healthcheck cycle fully resolves.
func (s *Rolling) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest, cluster *domain.Cluster) (res *domain.DeploymentResult) {
	res = begin(s.Name(), req, cluster)
	defer guard(res)

	nodes := cluster.Nodes()
	if len(nodes) == 0 {
		return finish(res, false, msgNoNodes)
	}

	batchSize := s.MaxConcurrent
	if batchSize < 1 {
		batchSize = 1
	}

	var deployed []domain.Node

	for start, batchNum := 0, 1; start < len(nodes); start, batchNum = start+batchSize, batchNum+1 {
		if ctx.Err() != nil {
			if len(deployed) == 0 {
				return finish(res, false, msgCancelled)
			}
			return failWithRollback(res, deployed, msgCancelled)
		}

		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[start:end]

		log.Printf("Rolling batch %d: deploying %s %s to %d nodes",
			batchNum, req.ModuleName, req.Version, len(batch))

		outcomes := deployAll(ctx, req, batch)
		res.NodeResults = append(res.NodeResults, outcomes...)
		deployed = append(deployed, successes(batch, outcomes)...)

		if !allSucceeded(outcomes) {
			return failWithRollback(res, deployed,
				fmt.Sprintf("Deployment failed on batch %d", batchNum))
		}

		if cancelled, failMsg := s.waitAfterBatch(ctx, cluster.Environment, deployed, batchNum); cancelled {
			return failWithRollback(res, deployed, msgCancelled)
		} else if failMsg != "" {
			return failWithRollback(res, deployed, failMsg)
		}

		if unhealthy := unhealthyNodes(ctx, deployed); len(unhealthy) > 0 {
			return failWithRollback(res, deployed,
				fmt.Sprintf("Health check failed on %s", joinNames(unhealthy)))
		}
	}

	return finish(res, true, fmt.Sprintf("Successfully deployed to all %d nodes", len(nodes)))
}

// waitAfterBatch performs the inter-batch wait. Returns cancelled=true if
// ctx was cancelled during the wait, or a non-empty failure message when
// the cluster did not stabilize.
func (s *Rolling) waitAfterBatch(
	ctx context.Context,
	env domain.Environment,
	deployed []domain.Node,
	batchNum int,
) (cancelled bool, failMsg string) {
	if !s.adaptive() {
		if !sleepCtx(ctx, s.HealthCheckDelay) {
			return true, ""
		}
		return false, ""
	}

	baseline, err := s.Provider.GetClusterMetrics(ctx, env)
	if err != nil {
		log.Printf("Baseline capture failed after batch %d: %v", batchNum, err)
		return ctx.Err() != nil, fmt.Sprintf("Cluster did not stabilize after batch %d", batchNum)
	}

	sres := s.Stabilizer.WaitForStabilization(ctx, domain.NodeIDs(deployed), baseline, s.Stabilization)
	if sres.Stable {
		return false, ""
	}
	if ctx.Err() != nil {
		return true, ""
	}
	return false, fmt.Sprintf("Cluster did not stabilize after batch %d", batchNum)
}
