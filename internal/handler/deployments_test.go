package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shipshift/orchestrator/internal/config"
	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/metrics"
	"github.com/shipshift/orchestrator/internal/node"
	"github.com/shipshift/orchestrator/internal/observability"
	"github.com/shipshift/orchestrator/internal/stabilize"
	"github.com/shipshift/orchestrator/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDeployments(registry *domain.ClusterRegistry) (*DeploymentHandler, *observability.Metrics) {
	provider := metrics.NewStaticProvider()
	deps := strategy.Deps{Provider: provider, Stabilizer: stabilize.NewService(provider)}
	m := observability.NewMetricsWith(prometheus.NewRegistry())
	return NewDeploymentHandler(registry, deps, nil, m), m
}

func testRouter(registry *domain.ClusterRegistry) *gin.Engine {
	return testRouterWith(registry, NewClusterHandler(registry, config.Load()))
}

func testRouterWith(registry *domain.ClusterRegistry, clusters *ClusterHandler) *gin.Engine {
	deployments, m := testDeployments(registry)
	return SetupRouter(deployments, clusters, NewHistoryHandler(nil), m, "*")
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) domain.DeploymentResult {
	t.Helper()
	var res domain.DeploymentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestDeployAgainstRegisteredCluster(t *testing.T) {
	registry := domain.NewClusterRegistry()
	cluster := domain.NewCluster("web", domain.EnvQA)
	for i := 0; i < 3; i++ {
		cluster.AddNode(node.NewSim(simHostname(i), domain.EnvQA, node.Faults{}))
	}
	require.NoError(t, registry.Register(cluster))

	r := testRouter(registry)
	w := doJSON(t, r, "POST", "/api/deployments", gin.H{
		"module":   "billing",
		"version":  "2.1.0",
		"cluster":  "web",
		"strategy": gin.H{"type": "direct"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeResult(t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "Direct", res.Strategy)
	assert.Len(t, res.NodeResults, 3)
}

func TestDeployUnknownCluster(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())
	w := doJSON(t, r, "POST", "/api/deployments", gin.H{
		"module":   "billing",
		"version":  "2.1.0",
		"cluster":  "missing",
		"strategy": gin.H{"type": "direct"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeployInvalidVersion(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())
	w := doJSON(t, r, "POST", "/api/deployments", gin.H{
		"module":   "billing",
		"version":  "not-a-version",
		"cluster":  "web",
		"strategy": gin.H{"type": "direct"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeployUnknownStrategy(t *testing.T) {
	registry := domain.NewClusterRegistry()
	require.NoError(t, registry.Register(domain.NewCluster("web", domain.EnvQA)))

	r := testRouter(registry)
	w := doJSON(t, r, "POST", "/api/deployments", gin.H{
		"module":   "billing",
		"version":  "2.1.0",
		"cluster":  "web",
		"strategy": gin.H{"type": "blue-green"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDryRunDirect(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())
	w := doJSON(t, r, "POST", "/api/deployments/dry-run", gin.H{
		"module":     "billing",
		"version":    "1.2.3",
		"node_count": 4,
		"strategy":   gin.H{"type": "direct"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeResult(t, w)
	assert.True(t, res.Success)
	assert.Equal(t, "1.2.3", res.Version)
	assert.Equal(t, domain.EnvDevelopment, res.Environment)
	assert.Len(t, res.NodeResults, 4)
}

func TestDryRunRollingWithFaults(t *testing.T) {
	// Node index 1 fails its deploy; rolling reverts the first batch
	r := testRouter(domain.NewClusterRegistry())
	w := doJSON(t, r, "POST", "/api/deployments/dry-run", gin.H{
		"module":     "billing",
		"version":    "1.2.3",
		"node_count": 3,
		"strategy":   gin.H{"type": "rolling", "max_concurrent": 1, "health_check_delay": 1},
		"faults":     []gin.H{{}, {"fail_deploy": true}},
	})

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeResult(t, w)
	assert.False(t, res.Success)
	assert.True(t, res.RollbackPerformed)
	require.Len(t, res.RollbackResults, 1)
	assert.Equal(t, "sim-00", res.RollbackResults[0].Hostname)
}

func TestDryRunCanary(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())
	w := doJSON(t, r, "POST", "/api/deployments/dry-run", gin.H{
		"module":      "billing",
		"version":     "1.2.3",
		"environment": "qa",
		"node_count":  10,
		"strategy": gin.H{
			"type":                 "canary",
			"initial_percentage":   10,
			"increment_percentage": 50,
			"wait_duration":        1,
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeResult(t, w)
	assert.True(t, res.Success)
	assert.Len(t, res.NodeResults, 10)
}

func TestDryRunValidatesNodeCount(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())
	w := doJSON(t, r, "POST", "/api/deployments/dry-run", gin.H{
		"module":     "billing",
		"version":    "1.2.3",
		"node_count": 0,
		"strategy":   gin.H{"type": "direct"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDryRunAdaptiveAnswersPromptly(t *testing.T) {
	// An adaptive strategy with no stabilization tuning must not fall back
	// to the production-scale waits inside an interactive dry run
	r := testRouter(domain.NewClusterRegistry())

	start := time.Now()
	w := doJSON(t, r, "POST", "/api/deployments/dry-run", gin.H{
		"module":     "billing",
		"version":    "1.2.3",
		"node_count": 4,
		"strategy":   gin.H{"type": "rolling", "max_concurrent": 2, "adaptive": true},
	})

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeResult(t, w)
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDryRunStabilizationCaps(t *testing.T) {
	// Untuned config collapses to the dry-run caps
	cfg := dryRunStabilization(stabilize.Config{})
	assert.Equal(t, dryRunPollInterval, cfg.PollingInterval)
	assert.Equal(t, dryRunMaxWait, cfg.MaximumWait)
	assert.LessOrEqual(t, cfg.MinimumWait, dryRunPollInterval)
	assert.Equal(t, stabilize.DefaultConfig().ConsecutiveStableChecks, cfg.ConsecutiveStableChecks)

	// User thresholds survive; oversized waits are clamped
	cfg = dryRunStabilization(stabilize.Config{
		CPUDeltaThreshold:       5,
		PollingInterval:         10 * time.Second,
		MinimumWait:             time.Minute,
		MaximumWait:             10 * time.Minute,
		ConsecutiveStableChecks: 1,
	})
	assert.Equal(t, 5.0, cfg.CPUDeltaThreshold)
	assert.Equal(t, 1, cfg.ConsecutiveStableChecks)
	assert.Equal(t, dryRunPollInterval, cfg.PollingInterval)
	assert.LessOrEqual(t, cfg.MinimumWait, dryRunPollInterval)
	assert.Equal(t, dryRunMaxWait, cfg.MaximumWait)
}

// recordingHistory captures the context each Save call arrives with
type recordingHistory struct {
	mu     sync.Mutex
	saves  int
	ctxErr error
}

func (r *recordingHistory) Save(ctx context.Context, id string, res *domain.DeploymentResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.ctxErr = ctx.Err()
}

func TestHistoryWriteSurvivesClientDisconnect(t *testing.T) {
	registry := domain.NewClusterRegistry()
	cluster := domain.NewCluster("web", domain.EnvQA)
	cluster.AddNode(node.NewSim("host-a", domain.EnvQA, node.Faults{}))
	require.NoError(t, registry.Register(cluster))

	deployments, m := testDeployments(registry)
	rec := &recordingHistory{}
	deployments.history = rec

	r := SetupRouter(deployments, NewClusterHandler(registry, config.Load()), NewHistoryHandler(nil), m, "*")

	payload, err := json.Marshal(gin.H{
		"module":   "billing",
		"version":  "2.1.0",
		"cluster":  "web",
		"strategy": gin.H{"type": "direct"},
	})
	require.NoError(t, err)

	// The request context is already cancelled, as after a disconnect
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("POST", "/api/deployments", bytes.NewReader(payload)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.saves)
	assert.NoError(t, rec.ctxErr, "history write must not inherit the request context")
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHistoryUnavailableWithoutDatabase(t *testing.T) {
	r := testRouter(domain.NewClusterRegistry())

	req := httptest.NewRequest("GET", "/api/history", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
