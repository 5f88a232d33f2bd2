package strategy

import (
	"context"
	"fmt"

	"github.com/shipshift/orchestrator/internal/domain"
)

// Direct deploys to every node at once with no phasing, no metrics check
// and no rollback. It is the high-risk, no-safety-net strategy for when
// speed matters more than safety.
type Direct struct{}

// NewDirect creates a direct strategy
func NewDirect() *Direct {
	return &Direct{}
}

func (s *Direct) Name() string { return "Direct" }

// Deploy fans out to all nodes concurrently and joins. Any single node
// failure fails the whole result, but nothing is rolled back.
func (s *Direct) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest, cluster *domain.Cluster) (res *domain.DeploymentResult) {
	res = begin(s.Name(), req, cluster)
	defer guard(res)

	nodes := cluster.Nodes()
	if len(nodes) == 0 {
		return finish(res, false, msgNoNodes)
	}

	if ctx.Err() != nil {
		return finish(res, false, msgCancelled)
	}

	res.NodeResults = deployAll(ctx, req, nodes)

	if !allSucceeded(res.NodeResults) {
		return finish(res, false,
			fmt.Sprintf("Deployment failed on %d of %d nodes", len(nodes)-res.DeployedCount(), len(nodes)))
	}

	return finish(res, true, fmt.Sprintf("Successfully deployed to all %d nodes", len(nodes)))
}
