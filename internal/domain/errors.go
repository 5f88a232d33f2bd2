package domain

import "errors"

var (
	// ErrNoNodes is returned when a rollout targets an empty cluster
	ErrNoNodes = errors.New("no nodes available")

	// ErrInvalidVersion is returned for malformed version strings
	ErrInvalidVersion = errors.New("invalid version")

	// ErrDeployFailed is returned when a node rejects a deploy operation
	ErrDeployFailed = errors.New("deploy failed")

	// ErrRollbackFailed is returned when a node rejects a rollback operation
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrMetricsUnavailable is returned when the telemetry backend cannot be reached
	ErrMetricsUnavailable = errors.New("metrics unavailable")

	// ErrUnknownStrategy is returned for unrecognised strategy types
	ErrUnknownStrategy = errors.New("unknown deployment strategy")

	// ErrClusterNotFound is returned when a cluster name is not registered
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrClusterExists is returned when registering a duplicate cluster name
	ErrClusterExists = errors.New("cluster already registered")

	// ErrNodeUnreachable is returned when a node handshake fails
	ErrNodeUnreachable = errors.New("node unreachable")
)
