package domain

import (
	"sync"
)

// Cluster is a named, environment-scoped collection of nodes. Membership
// is append-only: nodes are added once and never removed during a rollout,
// so strategies can read the node list concurrently.
type Cluster struct {
	Name        string
	Environment Environment

	mu    sync.RWMutex
	nodes []Node
}

// NewCluster creates an empty cluster
func NewCluster(name string, env Environment) *Cluster {
	return &Cluster{Name: name, Environment: env}
}

// AddNode appends a node. Insertion order is the basis for batch and
// wave partitioning.
func (c *Cluster) AddNode(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, n)
}

// Nodes returns a snapshot of the node list in insertion order
func (c *Cluster) Nodes() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Size returns the current node count
func (c *Cluster) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// NodeIDs collects the ids of the given nodes
func NodeIDs(nodes []Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID())
	}
	return ids
}

// ClusterRegistry tracks named clusters for the API layer
type ClusterRegistry struct {
	mu       sync.RWMutex
	clusters map[string]*Cluster
}

// NewClusterRegistry creates an empty registry
func NewClusterRegistry() *ClusterRegistry {
	return &ClusterRegistry{clusters: make(map[string]*Cluster)}
}

// Register adds a cluster under its name
func (r *ClusterRegistry) Register(c *Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clusters[c.Name]; ok {
		return ErrClusterExists
	}
	r.clusters[c.Name] = c
	return nil
}

// Get looks up a cluster by name
func (r *ClusterRegistry) Get(name string) (*Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clusters[name]
	if !ok {
		return nil, ErrClusterNotFound
	}
	return c, nil
}

// List returns all registered clusters
func (r *ClusterRegistry) List() []*Cluster {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		out = append(out, c)
	}
	return out
}
