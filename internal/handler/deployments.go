package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/metrics"
	"github.com/shipshift/orchestrator/internal/node"
	"github.com/shipshift/orchestrator/internal/observability"
	"github.com/shipshift/orchestrator/internal/stabilize"
	"github.com/shipshift/orchestrator/internal/store"
	"github.com/shipshift/orchestrator/internal/strategy"
)

// rolloutHistory persists finished rollouts
type rolloutHistory interface {
	Save(ctx context.Context, id string, res *domain.DeploymentResult)
}

// DeploymentHandler handles rollout endpoints
type DeploymentHandler struct {
	registry *domain.ClusterRegistry
	deps     strategy.Deps
	history  rolloutHistory
	metrics  *observability.Metrics
}

// NewDeploymentHandler creates a new DeploymentHandler. history may be nil
// when no database is configured.
func NewDeploymentHandler(
	registry *domain.ClusterRegistry,
	deps strategy.Deps,
	history *store.History,
	m *observability.Metrics,
) *DeploymentHandler {
	h := &DeploymentHandler{
		registry: registry,
		deps:     deps,
		metrics:  m,
	}
	if history != nil {
		h.history = history
	}
	return h
}

// DeployRequest is the API payload describing one rollout
type DeployRequest struct {
	Module   string        `json:"module" binding:"required"`
	Version  string        `json:"version" binding:"required"`
	Cluster  string        `json:"cluster" binding:"required"`
	Strategy strategy.Spec `json:"strategy" binding:"required"`
}

// Deploy runs a rollout against a registered cluster
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	var body DeployRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	version, err := domain.ParseVersion(body.Version)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	cluster, err := h.registry.Get(body.Cluster)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}

	strat, err := strategy.New(body.Strategy, h.deps)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	req := domain.ModuleDeploymentRequest{ModuleName: body.Module, Version: version}
	result := h.run(c, strat, req, cluster)

	c.JSON(http.StatusOK, result)
}

// DryRunRequest describes a rollout against a throwaway simulated cluster
type DryRunRequest struct {
	Module      string        `json:"module" binding:"required"`
	Version     string        `json:"version" binding:"required"`
	Environment string        `json:"environment"`
	NodeCount   int           `json:"node_count" binding:"required,min=1,max=100"`
	Strategy    strategy.Spec `json:"strategy" binding:"required"`
	Faults      []node.Faults `json:"faults,omitempty"`
}

// DryRun exercises a strategy against simulated nodes without touching
// any real target. Fault plans, when given, apply to nodes by index.
func (h *DeploymentHandler) DryRun(c *gin.Context) {
	var body DryRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	version, err := domain.ParseVersion(body.Version)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	env := domain.Environment(body.Environment)
	if env == "" {
		env = domain.EnvDevelopment
	}

	cluster := domain.NewCluster("dry-run", env)
	provider := metrics.NewStaticProvider()
	provider.SetClusterMetrics(domain.ClusterMetricsSnapshot{
		Environment: env, TotalNodes: body.NodeCount,
		AvgCPUUsage: 50, AvgMemoryUsage: 50, AvgLatencyMs: 20, AvgErrorRate: 0.01,
	})

	for i := 0; i < body.NodeCount; i++ {
		var faults node.Faults
		if i < len(body.Faults) {
			faults = body.Faults[i]
		}
		n := node.NewSim(simHostname(i), env, faults)
		cluster.AddNode(n)
		provider.SetNodeMetrics(domain.NodeMetricsSnapshot{
			NodeID: n.ID(), CPUUsagePercent: 50, MemoryUsagePercent: 50,
			LatencyMs: 20, ErrorRate: 0.01,
		})
	}

	if body.Strategy.Adaptive {
		body.Strategy.Stabilization = dryRunStabilization(body.Strategy.Stabilization)
	}

	deps := strategy.Deps{Provider: provider, Stabilizer: stabilize.NewService(provider)}
	strat, err := strategy.New(body.Strategy, deps)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	req := domain.ModuleDeploymentRequest{ModuleName: body.Module, Version: version}
	result := h.run(c, strat, req, cluster)

	c.JSON(http.StatusOK, result)
}

// run executes the strategy and records metrics and history. Deploy never
// returns an error; the result is always well-formed.
func (h *DeploymentHandler) run(
	c *gin.Context,
	strat strategy.Strategy,
	req domain.ModuleDeploymentRequest,
	cluster *domain.Cluster,
) *domain.DeploymentResult {
	start := time.Now()
	h.metrics.RecordRolloutStart()

	result := strat.Deploy(c.Request.Context(), req, cluster)

	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	h.metrics.RecordRolloutEnd(result.Strategy, status, time.Since(start).Seconds())
	h.metrics.RecordNodeDeploys(result.DeployedCount(), len(result.NodeResults)-result.DeployedCount())
	if result.RollbackPerformed {
		rbStatus := "success"
		if !result.RollbackSuccessful {
			rbStatus = "failed"
		}
		h.metrics.RecordRollback(rbStatus)
	}

	if h.history != nil {
		// Detached context: a client disconnect after the rollout finished
		// must not cancel the history write
		h.history.Save(context.Background(), uuid.New().String()[:8], result)
	}
	return result
}

// Dry runs answer an interactive HTTP request, so adaptive waits are
// capped well below the production stabilization windows
const (
	dryRunPollInterval = 20 * time.Millisecond
	dryRunMaxWait      = 2 * time.Second
)

func dryRunStabilization(cfg stabilize.Config) stabilize.Config {
	def := stabilize.DefaultConfig()
	if cfg.CPUDeltaThreshold <= 0 {
		cfg.CPUDeltaThreshold = def.CPUDeltaThreshold
	}
	if cfg.MemoryDeltaThreshold <= 0 {
		cfg.MemoryDeltaThreshold = def.MemoryDeltaThreshold
	}
	if cfg.LatencyDeltaThreshold <= 0 {
		cfg.LatencyDeltaThreshold = def.LatencyDeltaThreshold
	}
	if cfg.ConsecutiveStableChecks <= 0 {
		cfg.ConsecutiveStableChecks = def.ConsecutiveStableChecks
	}
	if cfg.PollingInterval <= 0 || cfg.PollingInterval > dryRunPollInterval {
		cfg.PollingInterval = dryRunPollInterval
	}
	if cfg.MinimumWait > dryRunPollInterval {
		cfg.MinimumWait = dryRunPollInterval
	}
	if cfg.MaximumWait <= 0 || cfg.MaximumWait > dryRunMaxWait {
		cfg.MaximumWait = dryRunMaxWait
	}
	return cfg
}

func simHostname(i int) string {
	return fmt.Sprintf("sim-%02d", i)
}
