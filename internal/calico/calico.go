// Package calico installs the Calico CNI through the tigera-operator chart
// and reports when the pod network is available.
package calico

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"helm.sh/helm/v3/pkg/chart"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/yaml"

	"github.com/imamik/kubestrap/internal/helm"
)

// Names of the objects the operator manages.
const (
	OperatorNamespace = "tigera-operator"
	SystemNamespace   = "calico-system"
	NodeDaemonSet     = "calico-node"
	StatusName        = "calico"
)

// TigeraStatusGVR identifies the operator's status resource.
var TigeraStatusGVR = schema.GroupVersionResource{
	Group:    "operator.tigera.io",
	Version:  "v1",
	Resource: "tigerastatuses",
}

// Cluster is the Kubernetes API surface the installer needs.
type Cluster interface {
	ApplyManifests(ctx context.Context, manifests []byte) error
	RefreshDiscovery(ctx context.Context) error
	ConditionTrue(ctx context.Context, gvr schema.GroupVersionResource, namespace, name, conditionType string) (bool, error)
	DaemonSetReady(ctx context.Context, namespace, name string) (bool, error)
}

// ChartLoader fetches a chart.
type ChartLoader func(ctx context.Context, spec helm.ChartSpec) (*chart.Chart, error)

// Options configures the installer.
type Options struct {
	Chart       helm.ChartSpec
	KubeVersion string
	Network     NetworkOptions

	// Labels are set on the namespace and custom resources kubestrap creates.
	Labels map[string]string
}

// Installer applies Calico to a cluster.
type Installer struct {
	cluster Cluster
	opts    Options
	log     logr.Logger

	// LoadChart defaults to helm.DownloadChart.
	LoadChart ChartLoader
}

// New returns an Installer.
func New(cluster Cluster, opts Options, log logr.Logger) *Installer {
	return &Installer{
		cluster:   cluster,
		opts:      opts,
		log:       log.WithName("calico"),
		LoadChart: helm.DownloadChart,
	}
}

// operatorValues disables the chart's own Installation and APIServer so the
// resources applied by Install are the only source of truth.
func operatorValues() helm.Values {
	return helm.Values{
		"installation": helm.Values{"enabled": false},
		"apiServer":    helm.Values{"enabled": false},
		"tolerations": []helm.Values{
			{"key": "node-role.kubernetes.io/control-plane", "effect": "NoSchedule", "operator": "Exists"},
			{"key": "node.kubernetes.io/not-ready", "operator": "Exists"},
		},
	}
}

// Install renders and applies the operator chart, then the Installation and
// FelixConfiguration resources. Server-side apply makes re-runs converge on
// the same objects.
func (i *Installer) Install(ctx context.Context) error {
	ch, err := i.LoadChart(ctx, i.opts.Chart)
	if err != nil {
		return fmt.Errorf("failed to load %s chart: %w", i.opts.Chart.Name, err)
	}

	renderer := helm.NewRenderer("calico", OperatorNamespace)
	renderer.IncludeCRDs = true
	if i.opts.KubeVersion != "" {
		renderer.KubeVersion = i.opts.KubeVersion
	}

	manifests, err := renderer.Render(ch, operatorValues())
	if err != nil {
		return fmt.Errorf("failed to render %s chart: %w", i.opts.Chart.Name, err)
	}

	i.log.Info("Applying tigera-operator", "chart", i.opts.Chart.String())
	namespace, err := namespaceManifest(OperatorNamespace, i.opts.Labels)
	if err != nil {
		return err
	}
	if err := i.cluster.ApplyManifests(ctx, namespace); err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", OperatorNamespace, err)
	}
	if err := i.cluster.ApplyManifests(ctx, manifests); err != nil {
		return fmt.Errorf("failed to apply tigera-operator: %w", err)
	}

	// The CRDs just applied are unknown to the cached discovery data.
	if err := i.cluster.RefreshDiscovery(ctx); err != nil {
		return err
	}

	resources, err := RenderResources(i.opts.Network, i.opts.Labels)
	if err != nil {
		return err
	}
	i.log.Info("Applying Calico resources",
		"cidr", i.opts.Network.PodCIDR,
		"encapsulation", i.opts.Network.Encapsulation,
		"wireguard", i.opts.Network.Wireguard)
	if err := i.cluster.ApplyManifests(ctx, resources); err != nil {
		return fmt.Errorf("failed to apply Calico resources: %w", err)
	}
	return nil
}

// Ready reports whether the operator marks Calico Available and every
// calico-node pod is ready.
func (i *Installer) Ready(ctx context.Context) (bool, error) {
	available, err := i.cluster.ConditionTrue(ctx, TigeraStatusGVR, "", StatusName, "Available")
	if err != nil || !available {
		return false, err
	}
	return i.cluster.DaemonSetReady(ctx, SystemNamespace, NodeDaemonSet)
}

func namespaceManifest(name string, objLabels map[string]string) ([]byte, error) {
	return yaml.Marshal(map[string]any{
		"apiVersion": "v1",
		"kind":       "Namespace",
		"metadata":   objectMeta(name, objLabels),
	})
}
