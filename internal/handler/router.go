package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shipshift/orchestrator/internal/observability"
)

// SetupRouter configures all API routes
func SetupRouter(
	deployments *DeploymentHandler,
	clusters *ClusterHandler,
	history *HistoryHandler,
	metrics *observability.Metrics,
	corsOrigin string,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(corsOrigin))
	r.Use(PrometheusMiddleware(metrics))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rollout endpoints
	deployGroup := r.Group("/api/deployments")
	{
		deployGroup.POST("", deployments.Deploy)
		deployGroup.POST("/dry-run", deployments.DryRun)
	}

	// Cluster endpoints
	clusterGroup := r.Group("/api/clusters")
	{
		clusterGroup.POST("", clusters.Create)
		clusterGroup.GET("", clusters.List)
		clusterGroup.GET("/:name", clusters.Get)
		clusterGroup.POST("/:name/nodes", clusters.AddNode)
	}

	// Rollout history
	historyGroup := r.Group("/api/history")
	{
		historyGroup.GET("", history.List)
		historyGroup.GET("/:rollout_id", history.Get)
	}

	return r
}
