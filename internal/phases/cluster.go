package phases

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/imamik/kubestrap/internal/calico"
	"github.com/imamik/kubestrap/internal/k8s"
)

// Cluster is the Kubernetes API surface the phases use.
type Cluster interface {
	calico.Cluster
	ServerVersion(ctx context.Context) (string, error)
	NodeReady(ctx context.Context, name string) (bool, error)
}

// ClusterFactory connects to the cluster described by a kubeconfig file.
type ClusterFactory func(kubeconfigPath string) (Cluster, error)

// NewKubeconfigCluster is the default ClusterFactory.
func NewKubeconfigCluster(kubeconfigPath string) (Cluster, error) {
	c, err := k8s.NewFromKubeconfigFile(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// lazyCluster connects on first use. The kubeconfig only exists once the
// control plane has been initialized, so the client cannot be built up front.
type lazyCluster struct {
	path    string
	factory ClusterFactory

	mu     sync.Mutex
	client Cluster
}

func newLazyCluster(path string, factory ClusterFactory) *lazyCluster {
	if factory == nil {
		factory = NewKubeconfigCluster
	}
	return &lazyCluster{path: path, factory: factory}
}

func (l *lazyCluster) get() (Cluster, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	c, err := l.factory(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster using %s: %w", l.path, err)
	}
	l.client = c
	return c, nil
}

func (l *lazyCluster) ServerVersion(ctx context.Context) (string, error) {
	c, err := l.get()
	if err != nil {
		return "", err
	}
	return c.ServerVersion(ctx)
}

func (l *lazyCluster) ApplyManifests(ctx context.Context, manifests []byte) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.ApplyManifests(ctx, manifests)
}

func (l *lazyCluster) RefreshDiscovery(ctx context.Context) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.RefreshDiscovery(ctx)
}

func (l *lazyCluster) ConditionTrue(ctx context.Context, gvr schema.GroupVersionResource, namespace, name, condType string) (bool, error) {
	c, err := l.get()
	if err != nil {
		return false, err
	}
	return c.ConditionTrue(ctx, gvr, namespace, name, condType)
}

func (l *lazyCluster) DaemonSetReady(ctx context.Context, namespace, name string) (bool, error) {
	c, err := l.get()
	if err != nil {
		return false, err
	}
	return c.DaemonSetReady(ctx, namespace, name)
}

func (l *lazyCluster) NodeReady(ctx context.Context, name string) (bool, error) {
	c, err := l.get()
	if err != nil {
		return false, err
	}
	return c.NodeReady(ctx, name)
}
