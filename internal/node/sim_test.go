package node

import (
	"context"
	"testing"

	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simRequest(version string) domain.ModuleDeploymentRequest {
	v, _ := domain.ParseVersion(version)
	return domain.ModuleDeploymentRequest{ModuleName: "billing", Version: v}
}

func TestSimDeployAndRollback(t *testing.T) {
	n := NewSim("sim-01", domain.EnvQA, Faults{})
	assert.Len(t, n.ID(), 8)
	assert.Empty(t, n.DeployedVersion())

	require.NoError(t, n.Deploy(context.Background(), simRequest("1.0.0")))
	assert.Equal(t, "1.0.0", n.DeployedVersion())

	require.NoError(t, n.Deploy(context.Background(), simRequest("1.1.0")))
	assert.Equal(t, "1.1.0", n.DeployedVersion())

	require.NoError(t, n.Rollback(context.Background()))
	assert.Equal(t, "1.0.0", n.DeployedVersion(), "rollback restores the previous version")
}

func TestSimFaults(t *testing.T) {
	deployFail := NewSim("sim-01", domain.EnvQA, Faults{FailDeploy: true})
	err := deployFail.Deploy(context.Background(), simRequest("1.0.0"))
	assert.ErrorIs(t, err, domain.ErrDeployFailed)
	assert.Empty(t, deployFail.DeployedVersion())

	rollbackFail := NewSim("sim-02", domain.EnvQA, Faults{FailRollback: true})
	require.NoError(t, rollbackFail.Deploy(context.Background(), simRequest("1.0.0")))
	assert.ErrorIs(t, rollbackFail.Rollback(context.Background()), domain.ErrRollbackFailed)

	unhealthy := NewSim("sim-03", domain.EnvQA, Faults{Unhealthy: true})
	assert.False(t, unhealthy.Healthy(context.Background()))

	panicky := NewSim("sim-04", domain.EnvQA, Faults{PanicOnDeploy: true})
	assert.Panics(t, func() {
		_ = panicky.Deploy(context.Background(), simRequest("1.0.0"))
	})
}

func TestSimRespectsContext(t *testing.T) {
	n := NewSim("sim-01", domain.EnvQA, Faults{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, n.Deploy(ctx, simRequest("1.0.0")), context.Canceled)
	assert.ErrorIs(t, n.Rollback(ctx), context.Canceled)
}
