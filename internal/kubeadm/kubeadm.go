// Package kubeadm initializes the Kubernetes control plane with kubeadm.
package kubeadm

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/platform/exec"
	"github.com/imamik/kubestrap/internal/platform/systemd"
)

// Well-known paths on the control plane node.
const (
	AdminConfPath = "/etc/kubernetes/admin.conf"
	ConfigPath    = "/etc/kubernetes/kubestrap-kubeadm.yaml"
)

// Options configures the control plane.
type Options struct {
	ClusterName          string
	NodeName             string
	AdvertiseAddress     string
	KubernetesVersion    string
	PodCIDR              string
	ServiceCIDR          string
	ControlPlaneEndpoint string
	CRISocket            string

	// KubeconfigPath receives a copy of admin.conf.
	KubeconfigPath string

	// JoinCommandPath receives the worker join command when set.
	JoinCommandPath string

	// Local writes KubeconfigPath and JoinCommandPath. When nil they are
	// written on the node itself.
	Local exec.Runner
}

// ControlPlane runs kubeadm on one node.
type ControlPlane struct {
	runner  exec.Runner
	local   exec.Runner
	systemd *systemd.Manager
	opts    Options
	log     logr.Logger
}

// New returns a ControlPlane for the node behind runner.
func New(runner exec.Runner, opts Options, log logr.Logger) *ControlPlane {
	local := opts.Local
	if local == nil {
		local = runner
	}
	return &ControlPlane{
		runner:  runner,
		local:   local,
		systemd: systemd.NewManager(runner),
		opts:    opts,
		log:     log.WithName("kubeadm"),
	}
}

// Init runs kubeadm init unless the node already has an admin credential,
// then exports the kubeconfig and join command. Re-running after a
// successful init only refreshes the exported files.
func (c *ControlPlane) Init(ctx context.Context) error {
	initialized, err := c.runner.FileExists(ctx, AdminConfPath)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", AdminConfPath, err)
	}

	if initialized {
		c.log.Info("Control plane already initialized", "path", AdminConfPath)
	} else {
		if err := c.runInit(ctx); err != nil {
			return err
		}
	}

	if err := c.exportKubeconfig(ctx); err != nil {
		return err
	}
	if c.opts.JoinCommandPath == "" {
		return nil
	}
	join, err := c.JoinCommand(ctx)
	if err != nil {
		return err
	}
	if err := c.writeLocal(ctx, c.opts.JoinCommandPath, []byte(join+"\n")); err != nil {
		return fmt.Errorf("failed to write join command: %w", err)
	}
	return nil
}

func (c *ControlPlane) runInit(ctx context.Context) error {
	config, err := RenderConfig(c.opts)
	if err != nil {
		return err
	}
	if err := c.runner.WriteFile(ctx, ConfigPath, config, 0o600); err != nil {
		return fmt.Errorf("failed to write kubeadm config: %w", err)
	}
	if err := c.systemd.EnableNow(ctx, "kubelet"); err != nil {
		return err
	}

	c.log.Info("Running kubeadm init", "version", c.opts.KubernetesVersion, "node", c.opts.NodeName)
	if _, err := c.runner.Run(ctx, exec.Join("kubeadm", "init", "--config", ConfigPath)); err != nil {
		return fmt.Errorf("kubeadm init failed: %w", err)
	}
	return nil
}

func (c *ControlPlane) exportKubeconfig(ctx context.Context) error {
	if c.opts.KubeconfigPath == "" {
		return nil
	}
	data, err := c.Kubeconfig(ctx)
	if err != nil {
		return err
	}
	if err := c.writeLocal(ctx, c.opts.KubeconfigPath, data); err != nil {
		return fmt.Errorf("failed to write kubeconfig: %w", err)
	}
	return nil
}

func (c *ControlPlane) writeLocal(ctx context.Context, p string, data []byte) error {
	current, err := c.local.ReadFile(ctx, p)
	if err == nil && string(current) == string(data) {
		return nil
	}
	return c.local.WriteFile(ctx, path.Clean(p), data, 0o600)
}

// JoinCommand creates a bootstrap token and returns the kubeadm join command
// for worker nodes.
func (c *ControlPlane) JoinCommand(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "kubeadm token create --print-join-command")
	if err != nil {
		return "", fmt.Errorf("failed to create join command: %w", err)
	}
	join := strings.TrimSpace(out)
	if idx := strings.LastIndex(join, "\n"); idx >= 0 {
		join = strings.TrimSpace(join[idx+1:])
	}
	if !strings.HasPrefix(join, "kubeadm join ") {
		return "", fmt.Errorf("unexpected join command output: %q", out)
	}
	return join, nil
}

// Kubeconfig returns the admin kubeconfig from the node.
func (c *ControlPlane) Kubeconfig(ctx context.Context) ([]byte, error) {
	data, err := c.runner.ReadFile(ctx, AdminConfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin kubeconfig: %w", err)
	}
	return data, nil
}
