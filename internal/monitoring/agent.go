// Package monitoring installs and controls the node monitoring agents:
// the Prometheus node exporter and the OpenTelemetry collector. Both run as
// systemd units; their binaries are expected to be present on the node.
package monitoring

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/platform/exec"
	"github.com/imamik/kubestrap/internal/platform/systemd"
	"github.com/imamik/kubestrap/internal/util/async"
	"github.com/imamik/kubestrap/internal/util/retry"
)

// Agent is a monitoring agent managed through systemd.
type Agent interface {
	Name() string
	Install(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Status(ctx context.Context) (systemd.State, error)
	Ready(ctx context.Context) (bool, error)
}

// file is a file an agent installs besides its unit.
type file struct {
	path string
	data []byte
	mode os.FileMode
}

// unitAgent holds what node exporter and otelcol have in common.
type unitAgent struct {
	name    string
	unit    string
	binary  string
	runner  exec.Runner
	systemd *systemd.Manager
	log     logr.Logger
}

func newUnitAgent(name, binary string, runner exec.Runner, log logr.Logger) unitAgent {
	return unitAgent{
		name:    name,
		unit:    name + ".service",
		binary:  binary,
		runner:  runner,
		systemd: systemd.NewManager(runner),
		log:     log.WithName(name),
	}
}

func (a *unitAgent) Name() string { return a.name }

// install writes files and the unit, enables it and restarts it when
// anything changed.
func (a *unitAgent) install(ctx context.Context, unit []byte, files ...file) error {
	if _, err := a.runner.Run(ctx, "test -x "+exec.Quote(a.binary)); err != nil {
		return retry.Fatal(fmt.Errorf("%s binary %s not found: %w", a.name, a.binary, err))
	}

	changed := false
	for _, f := range files {
		current, err := a.runner.ReadFile(ctx, f.path)
		if err == nil && string(current) == string(f.data) {
			continue
		}
		if err := a.runner.WriteFile(ctx, f.path, f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		changed = true
	}

	unitChanged, err := a.systemd.InstallUnit(ctx, a.unit, unit)
	if err != nil {
		return err
	}
	changed = changed || unitChanged

	if err := a.systemd.EnableNow(ctx, a.unit); err != nil {
		return err
	}
	if changed {
		a.log.Info("Restarting agent to apply configuration")
		return a.systemd.Restart(ctx, a.unit)
	}
	return nil
}

func (a *unitAgent) Start(ctx context.Context) error   { return a.systemd.Start(ctx, a.unit) }
func (a *unitAgent) Stop(ctx context.Context) error    { return a.systemd.Stop(ctx, a.unit) }
func (a *unitAgent) Restart(ctx context.Context) error { return a.systemd.Restart(ctx, a.unit) }

func (a *unitAgent) Status(ctx context.Context) (systemd.State, error) {
	return a.systemd.Status(ctx, a.unit)
}

func (a *unitAgent) Ready(ctx context.Context) (bool, error) {
	return a.systemd.IsActive(ctx, a.unit)
}

// InstallAll installs the agents concurrently.
func InstallAll(ctx context.Context, agents ...Agent) error {
	tasks := make([]async.Task, 0, len(agents))
	for _, a := range agents {
		tasks = append(tasks, async.Task{Name: a.Name(), Func: a.Install})
	}
	return async.RunParallel(ctx, tasks)
}

// AllReady reports whether every agent is ready.
func AllReady(ctx context.Context, agents ...Agent) (bool, error) {
	for _, a := range agents {
		ok, err := a.Ready(ctx)
		if err != nil {
			return false, fmt.Errorf("%s: %w", a.Name(), err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
