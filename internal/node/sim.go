// Package node provides the execution-target drivers a cluster is built
// from: an HTTP agent node, a Kubernetes Deployment node, an EC2 node,
// and a deterministic simulated node for tests and dry runs.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shipshift/orchestrator/internal/domain"
)

// Faults configures deterministic failure behavior for a simulated node.
// Production drivers carry no simulation concerns; fault injection lives
// entirely here.
type Faults struct {
	FailDeploy    bool `json:"fail_deploy"`
	FailRollback  bool `json:"fail_rollback"`
	Unhealthy     bool `json:"unhealthy"`
	PanicOnDeploy bool `json:"panic_on_deploy"`
}

// Sim is an in-memory node whose deploy and rollback succeed or fail
// according to its injected Faults
type Sim struct {
	id       string
	hostname string
	env      domain.Environment
	faults   Faults

	mu       sync.Mutex
	deployed string
	previous string
}

// NewSim creates a simulated node
func NewSim(hostname string, env domain.Environment, faults Faults) *Sim {
	return &Sim{
		id:       shortID(),
		hostname: hostname,
		env:      env,
		faults:   faults,
	}
}

func (n *Sim) ID() string                      { return n.id }
func (n *Sim) Hostname() string                { return n.hostname }
func (n *Sim) Environment() domain.Environment { return n.env }

func (n *Sim) DeployedVersion() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deployed
}

func (n *Sim) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.faults.PanicOnDeploy {
		panic(fmt.Sprintf("simulated agent crash on %s", n.hostname))
	}
	if n.faults.FailDeploy {
		return fmt.Errorf("%w: simulated failure on %s", domain.ErrDeployFailed, n.hostname)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.previous = n.deployed
	n.deployed = req.Version.String()
	return nil
}

func (n *Sim) Rollback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.faults.FailRollback {
		return fmt.Errorf("%w: simulated failure on %s", domain.ErrRollbackFailed, n.hostname)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.deployed = n.previous
	return nil
}

func (n *Sim) Healthy(ctx context.Context) bool {
	return !n.faults.Unhealthy
}

// shortID generates the 8-char node id used across drivers
func shortID() string {
	return uuid.New().String()[:8]
}
