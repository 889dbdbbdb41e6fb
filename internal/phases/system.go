package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/platform/exec"
)

const (
	modulesLoadPath = "/etc/modules-load.d/kubestrap.conf"
	sysctlPath      = "/etc/sysctl.d/99-kubestrap.conf"
)

// kernelModules are required by containerd overlay snapshots and bridged pod
// traffic.
var kernelModules = []string{"overlay", "br_netfilter"}

var sysctls = []struct {
	key, value string
}{
	{"net.bridge.bridge-nf-call-iptables", "1"},
	{"net.bridge.bridge-nf-call-ip6tables", "1"},
	{"net.ipv4.ip_forward", "1"},
}

// fstabSwapOff comments out active swap entries.
const fstabSwapOff = `sed -i -E 's@^([^#].*[[:space:]]swap[[:space:]].*)$@#\1@' /etc/fstab`

// SystemPrep disables swap and configures the kernel for Kubernetes
// networking. Every step may be repeated.
type SystemPrep struct {
	runner exec.Runner
	log    logr.Logger
}

// NewSystemPrep returns SystemPrep for the node behind runner.
func NewSystemPrep(runner exec.Runner, log logr.Logger) *SystemPrep {
	return &SystemPrep{runner: runner, log: log.WithName("system-prep")}
}

// Run applies the node settings.
func (s *SystemPrep) Run(ctx context.Context) error {
	s.log.Info("Disabling swap")
	if _, err := s.runner.Run(ctx, "swapoff -a"); err != nil {
		return fmt.Errorf("failed to disable swap: %w", err)
	}
	if _, err := s.runner.Run(ctx, fstabSwapOff); err != nil {
		return fmt.Errorf("failed to disable swap in /etc/fstab: %w", err)
	}

	s.log.Info("Loading kernel modules", "modules", kernelModules)
	if err := s.runner.WriteFile(ctx, modulesLoadPath, []byte(strings.Join(kernelModules, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", modulesLoadPath, err)
	}
	for _, m := range kernelModules {
		if _, err := s.runner.Run(ctx, "modprobe "+exec.Quote(m)); err != nil {
			return fmt.Errorf("failed to load kernel module %s: %w", m, err)
		}
	}

	if err := s.runner.WriteFile(ctx, sysctlPath, []byte(sysctlConf()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", sysctlPath, err)
	}
	if _, err := s.runner.Run(ctx, "sysctl --system"); err != nil {
		return fmt.Errorf("failed to apply sysctl settings: %w", err)
	}
	return nil
}

// Verify reports whether the kernel settings are in effect.
func (s *SystemPrep) Verify(ctx context.Context) (bool, error) {
	for _, kv := range sysctls {
		out, err := s.runner.Run(ctx, "sysctl -n "+kv.key)
		if err != nil {
			return false, err
		}
		if strings.TrimSpace(out) != kv.value {
			return false, nil
		}
	}
	out, err := s.runner.Run(ctx, "swapon --noheadings --show")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

func sysctlConf() string {
	var b strings.Builder
	for _, kv := range sysctls {
		fmt.Fprintf(&b, "%s = %s\n", kv.key, kv.value)
	}
	return b.String()
}
