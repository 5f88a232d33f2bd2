package domain

import "context"

// NodeConfiguration describes how to reach one execution target.
// Simulation and fault-injection concerns live in the node drivers,
// not here.
type NodeConfiguration struct {
	Hostname    string      `json:"hostname"`
	Port        int         `json:"port"`
	Environment Environment `json:"environment"`
}

// Node is a single execution target for a rollout. The transport a node
// uses to push code is opaque to the orchestrator: deploy and rollback
// are black-box remote calls that either succeed or return an error.
//
// Strategies call Deploy and Rollback on the same node only sequentially
// with respect to each other; cross-node calls run concurrently.
type Node interface {
	ID() string
	Hostname() string
	Environment() Environment

	// DeployedVersion reports the module version currently on the node,
	// empty if nothing has been deployed
	DeployedVersion() string

	Deploy(ctx context.Context, req ModuleDeploymentRequest) error
	Rollback(ctx context.Context) error
	Healthy(ctx context.Context) bool
}
