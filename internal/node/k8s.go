package node

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/shipshift/orchestrator/internal/domain"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset builds a Kubernetes clientset from a kubeconfig path,
// falling back to in-cluster config and then the default kubeconfig
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error

	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			cfg, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("k8s config: %w", err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8s clientset: %w", err)
	}
	return cs, nil
}

// K8s is a node backed by one Kubernetes Deployment. Deploying a module
// version retags the managed container's image; health is the ready
// replica count.
type K8s struct {
	id        string
	clientset kubernetes.Interface
	namespace string
	name      string
	container string
	image     string
	env       domain.Environment

	mu            sync.Mutex
	previousImage string
}

// NewK8s creates a Kubernetes node for the given Deployment. image is the
// repository reference without a tag; the deployed version becomes the tag.
func NewK8s(clientset kubernetes.Interface, namespace, name, container, image string, env domain.Environment) *K8s {
	return &K8s{
		id:        shortID(),
		clientset: clientset,
		namespace: namespace,
		name:      name,
		container: container,
		image:     image,
		env:       env,
	}
}

func (n *K8s) ID() string                      { return n.id }
func (n *K8s) Hostname() string                { return n.namespace + "/" + n.name }
func (n *K8s) Environment() domain.Environment { return n.env }

// DeployedVersion reads the current image tag off the Deployment
func (n *K8s) DeployedVersion() string {
	dep, err := n.clientset.AppsV1().Deployments(n.namespace).Get(context.Background(), n.name, metav1.GetOptions{})
	if err != nil {
		return ""
	}
	for _, c := range dep.Spec.Template.Spec.Containers {
		if c.Name == n.container {
			if i := strings.LastIndex(c.Image, ":"); i >= 0 {
				return c.Image[i+1:]
			}
		}
	}
	return ""
}

func (n *K8s) Deploy(ctx context.Context, req domain.ModuleDeploymentRequest) error {
	deps := n.clientset.AppsV1().Deployments(n.namespace)

	dep, err := deps.Get(ctx, n.name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return fmt.Errorf("%w: deployment %s not found", domain.ErrDeployFailed, n.Hostname())
		}
		return fmt.Errorf("%w: get deployment: %v", domain.ErrDeployFailed, err)
	}

	updated := false
	for i, c := range dep.Spec.Template.Spec.Containers {
		if c.Name == n.container {
			n.mu.Lock()
			n.previousImage = c.Image
			n.mu.Unlock()

			dep.Spec.Template.Spec.Containers[i].Image = fmt.Sprintf("%s:%s", n.image, req.Version)
			updated = true
			break
		}
	}
	if !updated {
		return fmt.Errorf("%w: container %s not found in %s", domain.ErrDeployFailed, n.container, n.Hostname())
	}

	if dep.Spec.Template.Annotations == nil {
		dep.Spec.Template.Annotations = map[string]string{}
	}
	dep.Spec.Template.Annotations["shipshift.io/module"] = req.ModuleName
	dep.Spec.Template.Annotations["shipshift.io/version"] = req.Version.String()

	if _, err := deps.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("%w: update deployment: %v", domain.ErrDeployFailed, err)
	}

	log.Printf("Deployed %s %s to %s", req.ModuleName, req.Version, n.Hostname())
	return nil
}

// Rollback restores the image recorded before the last deploy
func (n *K8s) Rollback(ctx context.Context) error {
	n.mu.Lock()
	previous := n.previousImage
	n.mu.Unlock()
	if previous == "" {
		return nil
	}

	deps := n.clientset.AppsV1().Deployments(n.namespace)

	dep, err := deps.Get(ctx, n.name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("%w: get deployment: %v", domain.ErrRollbackFailed, err)
	}

	for i, c := range dep.Spec.Template.Spec.Containers {
		if c.Name == n.container {
			dep.Spec.Template.Spec.Containers[i].Image = previous
			break
		}
	}

	if _, err := deps.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("%w: update deployment: %v", domain.ErrRollbackFailed, err)
	}

	log.Printf("Rolled back %s to %s", n.Hostname(), previous)
	return nil
}

// Healthy reports whether every desired replica is ready
func (n *K8s) Healthy(ctx context.Context) bool {
	dep, err := n.clientset.AppsV1().Deployments(n.namespace).Get(ctx, n.name, metav1.GetOptions{})
	if err != nil {
		return false
	}

	desired := int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}
	return desired > 0 && dep.Status.ReadyReplicas == desired
}
