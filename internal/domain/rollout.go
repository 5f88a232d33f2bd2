package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the cluster tier a rollout targets
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvQA          Environment = "qa"
	EnvProduction  Environment = "production"
)

// Version is a semantic module version
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses "major.minor.patch" into a Version
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// ModuleDeploymentRequest is the immutable input to a rollout
type ModuleDeploymentRequest struct {
	ModuleName string  `json:"module_name"`
	Version    Version `json:"version"`
}

// NodeOutcome records the result of a single deploy or rollback call
// against one node
type NodeOutcome struct {
	NodeID   string `json:"node_id"`
	Hostname string `json:"hostname"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// DeploymentResult is the single value every strategy returns from Deploy.
// It is created once per Deploy call and never mutated afterward.
type DeploymentResult struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	Strategy    string      `json:"strategy"`
	Environment Environment `json:"environment"`
	ModuleName  string      `json:"module_name"`
	Version     string      `json:"version"`

	NodeResults []NodeOutcome `json:"node_results"`

	RollbackPerformed  bool          `json:"rollback_performed"`
	RollbackResults    []NodeOutcome `json:"rollback_results,omitempty"`
	RollbackSuccessful bool          `json:"rollback_successful"`

	// Error is set only for genuinely unexpected failures, never for
	// simulated or business failures
	Error *string `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeployedCount returns the number of nodes that reported deploy success
func (r *DeploymentResult) DeployedCount() int {
	n := 0
	for _, o := range r.NodeResults {
		if o.Success {
			n++
		}
	}
	return n
}
