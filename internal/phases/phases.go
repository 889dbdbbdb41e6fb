// Package phases assembles the bootstrap phase graph for a single-node
// cluster from the configuration and the node collaborators.
package phases

import (
	"context"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/bootstrap"
	"github.com/imamik/kubestrap/internal/calico"
	"github.com/imamik/kubestrap/internal/config"
	"github.com/imamik/kubestrap/internal/convergence"
	"github.com/imamik/kubestrap/internal/helm"
	"github.com/imamik/kubestrap/internal/kubeadm"
	"github.com/imamik/kubestrap/internal/monitoring"
	"github.com/imamik/kubestrap/internal/platform/containerd"
	"github.com/imamik/kubestrap/internal/platform/exec"
	"github.com/imamik/kubestrap/internal/util/labels"
)

// Phase identifiers. They name the state records, so they must stay stable.
const (
	SystemPrepID       = "system-prep"
	ContainerRuntimeID = "container-runtime"
	ControlPlaneInitID = "control-plane-init"
	CNIInstallID       = "cni-install"
	MonitoringAgentsID = "monitoring-agents"
)

// JoinCommandFile is written next to the kubeconfig.
const JoinCommandFile = "kubestrap-join.sh"

// Deps are the collaborators the phases act through.
type Deps struct {
	// Node runs commands on the node being bootstrapped.
	Node exec.Runner

	// Local receives the kubeconfig and join command. Defaults to Node.
	Local exec.Runner

	// NewCluster defaults to NewKubeconfigCluster.
	NewCluster ClusterFactory

	// LoadChart defaults to helm.DownloadChart.
	LoadChart calico.ChartLoader

	Log logr.Logger
}

// Build returns the default bootstrap graph:
// system-prep → container-runtime → control-plane-init → cni-install → monitoring-agents.
func Build(cfg *config.Config, timeouts *config.Timeouts, deps Deps) (*bootstrap.Graph, error) {
	log := deps.Log
	cluster := newLazyCluster(cfg.Kubernetes.KubeconfigPath, deps.NewCluster)

	prep := NewSystemPrep(deps.Node, log)

	runtime := containerd.New(deps.Node, containerd.Options{
		ConfigPath:     cfg.Containerd.ConfigPath,
		SandboxImage:   cfg.Containerd.SandboxImage,
		InstallCommand: cfg.Containerd.InstallCommand,
	}, log)

	controlPlane := kubeadm.New(deps.Node, kubeadm.Options{
		ClusterName:          cfg.ClusterName,
		NodeName:             cfg.Node.Name,
		AdvertiseAddress:     cfg.Node.AdvertiseAddress,
		KubernetesVersion:    cfg.Kubernetes.Version,
		PodCIDR:              cfg.Kubernetes.PodCIDR,
		ServiceCIDR:          cfg.Kubernetes.ServiceCIDR,
		ControlPlaneEndpoint: cfg.Kubernetes.ControlPlaneEndpoint,
		KubeconfigPath:       cfg.Kubernetes.KubeconfigPath,
		JoinCommandPath:      filepath.Join(filepath.Dir(cfg.Kubernetes.KubeconfigPath), JoinCommandFile),
		Local:                deps.Local,
	}, log)

	cni := calico.New(cluster, calico.Options{
		Chart: helm.ChartSpec{
			Repository: cfg.Calico.Chart.Repository,
			Name:       cfg.Calico.Chart.Name,
			Version:    cfg.Calico.Chart.Version,
		},
		KubeVersion: cfg.Kubernetes.Version,
		Network: calico.NetworkOptions{
			PodCIDR:       cfg.Kubernetes.PodCIDR,
			Encapsulation: string(cfg.Calico.Encapsulation),
			MTU:           cfg.Calico.MTU,
			Wireguard:     cfg.Calico.Encryption == config.EncryptionWireguard,
		},
		Labels: labels.NewLabelBuilder(cfg.ClusterName).WithComponent("cni").Build(),
	}, log)
	if deps.LoadChart != nil {
		cni.LoadChart = deps.LoadChart
	}

	agents := Agents(cfg, deps.Node, log)

	check := func(name string, budget time.Duration, probe convergence.Probe) *convergence.Check {
		return &convergence.Check{
			Name:        name,
			Probe:       probe,
			Interval:    timeouts.ReadinessInterval,
			MaxAttempts: timeouts.PollAttempts(budget),
			Timeout:     budget,
		}
	}

	return bootstrap.NewGraph(
		bootstrap.Phase{
			ID:          SystemPrepID,
			Description: "Disable swap, load kernel modules and apply sysctl settings",
			Action:      prep.Run,
			Readiness:   check("kernel settings", timeouts.Service, prep.Verify),
		},
		bootstrap.Phase{
			ID:            ContainerRuntimeID,
			Description:   "Configure and start containerd",
			Prerequisites: []string{SystemPrepID},
			Action:        runtime.Ensure,
			Readiness:     check("containerd", timeouts.Service, runtime.Ready),
		},
		bootstrap.Phase{
			ID:            ControlPlaneInitID,
			Description:   "Initialize the control plane with kubeadm",
			Prerequisites: []string{ContainerRuntimeID},
			Action:        controlPlane.Init,
			Readiness: check("api server", timeouts.ControlPlane, func(ctx context.Context) (bool, error) {
				if _, err := cluster.ServerVersion(ctx); err != nil {
					return false, err
				}
				return true, nil
			}),
		},
		bootstrap.Phase{
			ID:            CNIInstallID,
			Description:   "Install Calico through the tigera-operator",
			Prerequisites: []string{ControlPlaneInitID},
			Action:        cni.Install,
			Readiness: check("calico", timeouts.CNI, func(ctx context.Context) (bool, error) {
				ready, err := cni.Ready(ctx)
				if err != nil || !ready {
					return false, err
				}
				return cluster.NodeReady(ctx, cfg.Node.Name)
			}),
		},
		bootstrap.Phase{
			ID:            MonitoringAgentsID,
			Description:   "Install the monitoring agents",
			Prerequisites: []string{CNIInstallID},
			Action: func(ctx context.Context) error {
				if len(agents) == 0 {
					log.Info("No monitoring agents enabled")
					return nil
				}
				return monitoring.InstallAll(ctx, agents...)
			},
			Readiness: check("monitoring agents", timeouts.Agents, func(ctx context.Context) (bool, error) {
				return monitoring.AllReady(ctx, agents...)
			}),
		},
	)
}

// Agents returns the monitoring agents enabled in cfg.
func Agents(cfg *config.Config, node exec.Runner, log logr.Logger) []monitoring.Agent {
	var agents []monitoring.Agent
	ne := cfg.Monitoring.NodeExporter
	if ne.Enabled {
		agents = append(agents, monitoring.NewNodeExporter(node, monitoring.NodeExporterOptions{
			ListenPort:  ne.ListenPort,
			TextfileDir: ne.TextfileDir,
		}, log))
	}
	oc := cfg.Monitoring.Otelcol
	if oc.Enabled {
		opts := monitoring.OtelcolOptions{
			Endpoint:   oc.Endpoint,
			AuthToken:  oc.AuthToken,
			ListenPort: oc.ListenPort,
		}
		if ne.Enabled {
			opts.ScrapeNodeExporter = ne.ListenPort
		}
		agents = append(agents, monitoring.NewOtelcol(node, opts, log))
	}
	return agents
}
