package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/shipshift/orchestrator/internal/config"
	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/node"
	"k8s.io/client-go/kubernetes"
)

// Node driver types accepted by AddNode
const (
	nodeTypeAgent = "agent"
	nodeTypeK8s   = "k8s"
	nodeTypeEC2   = "ec2"
)

// ClusterHandler handles cluster membership endpoints
type ClusterHandler struct {
	registry *domain.ClusterRegistry
	cfg      *config.Config

	mu        sync.Mutex
	clientset kubernetes.Interface

	// driver constructors; tests substitute fakes
	newClientset func(kubeconfig string) (kubernetes.Interface, error)
	newEC2       func(ctx context.Context, region, instanceID string, env domain.Environment) (domain.Node, error)
}

// NewClusterHandler creates a new ClusterHandler
func NewClusterHandler(registry *domain.ClusterRegistry, cfg *config.Config) *ClusterHandler {
	return &ClusterHandler{
		registry:     registry,
		cfg:          cfg,
		newClientset: node.NewClientset,
		newEC2: func(ctx context.Context, region, instanceID string, env domain.Environment) (domain.Node, error) {
			return node.NewEC2(ctx, region, instanceID, env)
		},
	}
}

// CreateClusterRequest registers a named, environment-scoped cluster
type CreateClusterRequest struct {
	Name        string `json:"name" binding:"required"`
	Environment string `json:"environment" binding:"required"`
}

// Create registers an empty cluster
func (h *ClusterHandler) Create(c *gin.Context) {
	var body CreateClusterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	cluster := domain.NewCluster(body.Name, domain.Environment(body.Environment))
	if err := h.registry.Register(cluster); err != nil {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, clusterSummary(cluster))
}

// AddNodeRequest attaches one node to a cluster. Type selects the driver:
// agent (the default), k8s, or ec2. Each driver reads its own fields.
type AddNodeRequest struct {
	Type string `json:"type"`

	// agent
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`

	// k8s
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Container string `json:"container"`
	Image     string `json:"image"`

	// ec2
	InstanceID string `json:"instance_id"`
}

// AddNode builds the requested node driver and appends it to the cluster.
// Membership is append-only; there is no remove.
func (h *ClusterHandler) AddNode(c *gin.Context) {
	cluster, err := h.registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}

	var body AddNodeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if body.Type == "" {
		body.Type = nodeTypeAgent
	}

	var n domain.Node
	switch body.Type {
	case nodeTypeAgent:
		n, err = h.connectAgent(c.Request.Context(), body, cluster.Environment)
	case nodeTypeK8s:
		n, err = h.buildK8s(body, cluster.Environment)
	case nodeTypeEC2:
		n, err = h.buildEC2(c.Request.Context(), body, cluster.Environment)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("unknown node type %q", body.Type)})
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNodeUnreachable) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"detail": err.Error()})
		return
	}

	cluster.AddNode(n)
	c.JSON(http.StatusCreated, gin.H{
		"node_id":  n.ID(),
		"hostname": n.Hostname(),
		"type":     body.Type,
	})
}

func (h *ClusterHandler) connectAgent(ctx context.Context, body AddNodeRequest, env domain.Environment) (domain.Node, error) {
	if body.Hostname == "" || body.Port < 1 || body.Port > 65535 {
		return nil, fmt.Errorf("agent nodes require hostname and port")
	}
	return node.Connect(ctx, domain.NodeConfiguration{
		Hostname:    body.Hostname,
		Port:        body.Port,
		Environment: env,
	})
}

func (h *ClusterHandler) buildK8s(body AddNodeRequest, env domain.Environment) (domain.Node, error) {
	if body.Namespace == "" || body.Name == "" || body.Container == "" || body.Image == "" {
		return nil, fmt.Errorf("k8s nodes require namespace, name, container and image")
	}
	cs, err := h.k8sClientset()
	if err != nil {
		return nil, err
	}
	return node.NewK8s(cs, body.Namespace, body.Name, body.Container, body.Image, env), nil
}

func (h *ClusterHandler) buildEC2(ctx context.Context, body AddNodeRequest, env domain.Environment) (domain.Node, error) {
	if body.InstanceID == "" {
		return nil, fmt.Errorf("ec2 nodes require instance_id")
	}
	return h.newEC2(ctx, h.cfg.AWSRegion, body.InstanceID, env)
}

// k8sClientset builds the shared clientset from the configured kubeconfig
// on first use
func (h *ClusterHandler) k8sClientset() (kubernetes.Interface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clientset != nil {
		return h.clientset, nil
	}
	cs, err := h.newClientset(h.cfg.KubeConfig)
	if err != nil {
		return nil, err
	}
	h.clientset = cs
	return cs, nil
}

// List returns all registered clusters
func (h *ClusterHandler) List(c *gin.Context) {
	clusters := h.registry.List()

	out := make([]gin.H, 0, len(clusters))
	for _, cl := range clusters {
		out = append(out, clusterSummary(cl))
	}
	c.JSON(http.StatusOK, gin.H{"clusters": out})
}

// Get returns one cluster with its node inventory
func (h *ClusterHandler) Get(c *gin.Context) {
	cluster, err := h.registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}

	nodes := cluster.Nodes()
	nodeList := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		nodeList = append(nodeList, gin.H{
			"node_id":          n.ID(),
			"hostname":         n.Hostname(),
			"deployed_version": n.DeployedVersion(),
		})
	}

	summary := clusterSummary(cluster)
	summary["nodes"] = nodeList
	c.JSON(http.StatusOK, summary)
}

func clusterSummary(c *domain.Cluster) gin.H {
	return gin.H{
		"name":        c.Name,
		"environment": c.Environment,
		"node_count":  c.Size(),
	}
}
