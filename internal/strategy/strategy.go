// Package strategy implements the rollout algorithms that drive a module
// onto a cluster: direct fan-out, rolling batches, and progressive canary.
package strategy

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
)

// Strategy drives one rollout over a cluster. Deploy always returns a
// DeploymentResult and never panics or propagates errors; callers need
// no error handling around a rollout call.
type Strategy interface {
	Name() string
	Deploy(ctx context.Context, req domain.ModuleDeploymentRequest, cluster *domain.Cluster) *domain.DeploymentResult
}

const (
	msgNoNodes   = "No nodes available"
	msgCancelled = "Deployment cancelled"
)

// begin creates the result skeleton every strategy fills in
func begin(name string, req domain.ModuleDeploymentRequest, cluster *domain.Cluster) *domain.DeploymentResult {
	now := time.Now().UTC()
	return &domain.DeploymentResult{
		Strategy:           name,
		Environment:        cluster.Environment,
		ModuleName:         req.ModuleName,
		Version:            req.Version.String(),
		RollbackSuccessful: true,
		StartedAt:          &now,
	}
}

func finish(res *domain.DeploymentResult, success bool, message string) *domain.DeploymentResult {
	now := time.Now().UTC()
	res.Success = success
	res.Message = message
	res.CompletedAt = &now
	return res
}

// guard converts a panic escaping a Deploy implementation into a failed
// result with the error recorded, preserving the never-throws contract
func guard(res *domain.DeploymentResult) {
	if r := recover(); r != nil {
		errStr := fmt.Sprintf("%v", r)
		res.Error = &errStr
		finish(res, false, "Deployment failed")
		log.Printf("Rollout panic recovered: %v", r)
	}
}

// deployAll issues the deploy call to every node concurrently and joins.
// Outcomes are returned in node order. A panicking node driver is
// recorded as a failed outcome rather than crashing the rollout.
func deployAll(ctx context.Context, req domain.ModuleDeploymentRequest, nodes []domain.Node) []domain.NodeOutcome {
	outcomes := make([]domain.NodeOutcome, len(nodes))

	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n domain.Node) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = domain.NodeOutcome{
						NodeID:   n.ID(),
						Hostname: n.Hostname(),
						Error:    fmt.Sprintf("panic during deploy: %v", r),
					}
				}
			}()

			err := n.Deploy(ctx, req)
			outcome := domain.NodeOutcome{
				NodeID:   n.ID(),
				Hostname: n.Hostname(),
				Success:  err == nil,
			}
			if err != nil {
				outcome.Error = err.Error()
				log.Printf("Deploy failed on %s: %v", n.Hostname(), err)
			}
			outcomes[i] = outcome
		}(i, n)
	}
	wg.Wait()

	return outcomes
}

// rollbackAll reverts every given node concurrently. Rollback is
// best-effort and exhaustive: one node's failure never blocks another's
// attempt. Returns the per-node outcomes and whether all succeeded.
func rollbackAll(nodes []domain.Node) ([]domain.NodeOutcome, bool) {
	if len(nodes) == 0 {
		return nil, true
	}

	// Rollback runs even when the rollout's own context was cancelled:
	// the cluster must still be reverted to a reported state.
	ctx := context.Background()

	outcomes := make([]domain.NodeOutcome, len(nodes))

	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n domain.Node) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = domain.NodeOutcome{
						NodeID:   n.ID(),
						Hostname: n.Hostname(),
						Error:    fmt.Sprintf("panic during rollback: %v", r),
					}
				}
			}()

			err := n.Rollback(ctx)
			outcome := domain.NodeOutcome{
				NodeID:   n.ID(),
				Hostname: n.Hostname(),
				Success:  err == nil,
			}
			if err != nil {
				outcome.Error = err.Error()
				log.Printf("Rollback failed on %s: %v", n.Hostname(), err)
			}
			outcomes[i] = outcome
		}(i, n)
	}
	wg.Wait()

	allOK := true
	for _, o := range outcomes {
		if !o.Success {
			allOK = false
		}
	}
	return outcomes, allOK
}

// failWithRollback reverts everything deployed so far and finishes the
// result as failed with the given message
func failWithRollback(res *domain.DeploymentResult, deployed []domain.Node, message string) *domain.DeploymentResult {
	log.Printf("Rollout failed (%s), rolling back %d nodes", message, len(deployed))

	outcomes, allOK := rollbackAll(deployed)
	res.RollbackPerformed = true
	res.RollbackResults = outcomes
	res.RollbackSuccessful = allOK
	return finish(res, false, message)
}

// successes filters the nodes whose outcome reported deploy success
func successes(nodes []domain.Node, outcomes []domain.NodeOutcome) []domain.Node {
	out := make([]domain.Node, 0, len(nodes))
	for i, o := range outcomes {
		if o.Success {
			out = append(out, nodes[i])
		}
	}
	return out
}

func allSucceeded(outcomes []domain.NodeOutcome) bool {
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}

// unhealthyNodes runs the node-reported health check over the given set
func unhealthyNodes(ctx context.Context, nodes []domain.Node) []string {
	var names []string
	for _, n := range nodes {
		if !n.Healthy(ctx) {
			names = append(names, n.Hostname())
		}
	}
	return names
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
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
