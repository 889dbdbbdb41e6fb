// Package containerd installs and configures the containerd runtime for
// kubelet use with the systemd cgroup driver.
package containerd

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/platform/exec"
	"github.com/imamik/kubestrap/internal/platform/systemd"
	"github.com/imamik/kubestrap/internal/util/retry"
)

// Unit is the containerd systemd unit.
const Unit = "containerd"

var (
	systemdCgroupRe = regexp.MustCompile(`(?m)^([ \t]*)SystemdCgroup[ \t]*=[ \t]*\w+`)
	sandboxImageRe  = regexp.MustCompile(`(?m)^([ \t]*)(sandbox_image|sandbox)[ \t]*=[ \t]*(["'])[^"'\n]*(["'])`)
)

// Options configures the runtime.
type Options struct {
	ConfigPath     string
	SandboxImage   string
	InstallCommand string
}

// Runtime manages containerd on one node.
type Runtime struct {
	runner  exec.Runner
	systemd *systemd.Manager
	opts    Options
	log     logr.Logger
}

// New returns a Runtime for the node behind runner.
func New(runner exec.Runner, opts Options, log logr.Logger) *Runtime {
	return &Runtime{
		runner:  runner,
		systemd: systemd.NewManager(runner),
		opts:    opts,
		log:     log.WithName("containerd"),
	}
}

// Ensure makes sure containerd is installed, configured with
// SystemdCgroup = true, enabled and running. It is safe to call repeatedly.
func (r *Runtime) Ensure(ctx context.Context) error {
	if err := r.ensureInstalled(ctx); err != nil {
		return err
	}

	changed, err := r.ensureConfig(ctx)
	if err != nil {
		return err
	}

	if err := r.systemd.EnableNow(ctx, Unit); err != nil {
		return err
	}
	if changed {
		r.log.Info("Restarting containerd to apply configuration", "path", r.opts.ConfigPath)
		if err := r.systemd.Restart(ctx, Unit); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) ensureInstalled(ctx context.Context) error {
	if _, err := r.runner.Run(ctx, "command -v containerd"); err == nil {
		return nil
	}
	if r.opts.InstallCommand == "" {
		return retry.Fatal(fmt.Errorf("containerd binary not found and no install command configured"))
	}

	r.log.Info("Installing containerd")
	if _, err := r.runner.Run(ctx, r.opts.InstallCommand); err != nil {
		return fmt.Errorf("failed to install containerd: %w", err)
	}
	if _, err := r.runner.Run(ctx, "command -v containerd"); err != nil {
		return fmt.Errorf("containerd still missing after install command: %w", err)
	}
	return nil
}

// ensureConfig writes the runtime configuration and reports whether it
// changed on disk.
func (r *Runtime) ensureConfig(ctx context.Context) (bool, error) {
	defaults, err := r.runner.Run(ctx, "containerd config default")
	if err != nil {
		return false, fmt.Errorf("failed to generate default containerd config: %w", err)
	}

	desired, err := RenderConfig(defaults, r.opts.SandboxImage)
	if err != nil {
		return false, err
	}

	current, err := r.runner.ReadFile(ctx, r.opts.ConfigPath)
	if err == nil && string(current) == desired {
		return false, nil
	}

	if err := r.runner.WriteFile(ctx, r.opts.ConfigPath, []byte(desired), 0o644); err != nil {
		return false, fmt.Errorf("failed to write containerd config: %w", err)
	}
	return true, nil
}

// Ready reports whether the service is active and answers ctr.
func (r *Runtime) Ready(ctx context.Context) (bool, error) {
	active, err := r.systemd.IsActive(ctx, Unit)
	if err != nil || !active {
		return false, err
	}
	if _, err := r.runner.Run(ctx, "ctr version"); err != nil {
		return false, err
	}
	return true, nil
}

// RenderConfig switches the runc runtime to the systemd cgroup driver and,
// when sandboxImage is set, pins the pause image.
func RenderConfig(defaults, sandboxImage string) (string, error) {
	if !systemdCgroupRe.MatchString(defaults) {
		return "", fmt.Errorf("default containerd config has no SystemdCgroup option")
	}
	out := systemdCgroupRe.ReplaceAllString(defaults, "${1}SystemdCgroup = true")

	if sandboxImage != "" {
		out = sandboxImageRe.ReplaceAllString(out, "${1}${2} = ${3}"+sandboxImage+"${4}")
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}
