package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
)

// Agent is a node backed by the shipshift host agent's HTTP API. Deploy
// and rollback are opaque remote calls; the agent performs the actual
// artifact fetch and activation on its host.
type Agent struct {
	id     string
	cfg    domain.NodeConfiguration
	client *http.Client

	mu         sync.Mutex
	deployed   string
	lastModule string
}

// Connect performs the construction handshake against the agent and
// returns the node. Fails with ErrNodeUnreachable if the agent does not
// answer its health endpoint.
func Connect(ctx context.Context, cfg domain.NodeConfiguration) (*Agent, error) {
	n := &Agent{
		id:     shortID(),
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", n.baseURL()+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create handshake request: %w", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrNodeUnreachable, cfg.Hostname, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrNodeUnreachable, cfg.Hostname, resp.StatusCode)
	}

	log.Printf("Connected to agent %s (%s:%d)", n.id, cfg.Hostname, cfg.Port)
	return n, nil
}

func (n *Agent) ID() string                      { return n.id }
func (n *Agent) Hostname() string                { return n.cfg.Hostname }
func (n *Agent) Environment() domain.Environment { return n.cfg.Environment }

func (n *Agent) DeployedVersion() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deployed
}

func (n *Agent) baseURL() string {
	return fmt.Sprintf("http://%s:%d", n.cfg.Hostname, n.cfg.Port)
}

// Deploy asks the agent to activate the requested module version
func (n *Agent) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest) error {
	path := fmt.Sprintf("/modules/%s/deploy", req.ModuleName)
	if err := n.post(ctx, path, map[string]any{"version": req.Version.String()}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeployFailed, err)
	}

	n.mu.Lock()
	n.deployed = req.Version.String()
	n.lastModule = req.ModuleName
	n.mu.Unlock()
	return nil
}

// Rollback asks the agent to revert the last deployed module. A node
// that was never deployed to has nothing to revert.
func (n *Agent) Rollback(ctx context.Context) error {
	n.mu.Lock()
	module := n.lastModule
	n.mu.Unlock()
	if module == "" {
		return nil
	}

	path := fmt.Sprintf("/modules/%s/rollback", module)
	if err := n.post(ctx, path, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRollbackFailed, err)
	}

	n.mu.Lock()
	n.deployed = ""
	n.mu.Unlock()
	return nil
}

// Healthy reports the agent's own health verdict for its host
func (n *Agent) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", n.baseURL()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (n *Agent) post(ctx context.Context, path string, body any) error {
	var payload io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.baseURL()+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
