// Package systemd manages units through systemctl on a node.
package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/imamik/kubestrap/internal/platform/exec"
)

// UnitDir is where kubestrap installs its unit files.
const UnitDir = "/etc/systemd/system"

// State is the value reported by systemctl is-active.
type State string

// Known unit states.
const (
	StateActive       State = "active"
	StateInactive     State = "inactive"
	StateFailed       State = "failed"
	StateActivating   State = "activating"
	StateDeactivating State = "deactivating"
	StateUnknown      State = "unknown"
)

// Manager runs systemctl through a Runner.
type Manager struct {
	runner exec.Runner
}

// NewManager returns a Manager for the node behind runner.
func NewManager(runner exec.Runner) *Manager {
	return &Manager{runner: runner}
}

// InstallUnit writes a unit file and reloads systemd when the content changed.
// It reports whether the file was changed.
func (m *Manager) InstallUnit(ctx context.Context, name string, content []byte) (bool, error) {
	path := UnitPath(name)
	current, err := m.runner.ReadFile(ctx, path)
	if err == nil && string(current) == string(content) {
		return false, nil
	}
	if err := m.runner.WriteFile(ctx, path, content, 0o644); err != nil {
		return false, fmt.Errorf("failed to install unit %s: %w", name, err)
	}
	if err := m.DaemonReload(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveUnit deletes a unit file installed by InstallUnit.
func (m *Manager) RemoveUnit(ctx context.Context, name string) error {
	if _, err := m.runner.Run(ctx, "rm -f "+exec.Quote(UnitPath(name))); err != nil {
		return fmt.Errorf("failed to remove unit %s: %w", name, err)
	}
	return m.DaemonReload(ctx)
}

// DaemonReload reloads unit definitions.
func (m *Manager) DaemonReload(ctx context.Context) error {
	return m.systemctl(ctx, "daemon-reload")
}

// EnableNow enables the unit and starts it.
func (m *Manager) EnableNow(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "enable", "--now", unit)
}

// Start starts the unit.
func (m *Manager) Start(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "start", unit)
}

// Stop stops the unit.
func (m *Manager) Stop(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "stop", unit)
}

// Restart restarts the unit.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "restart", unit)
}

// Disable stops and disables the unit.
func (m *Manager) Disable(ctx context.Context, unit string) error {
	return m.systemctl(ctx, "disable", "--now", unit)
}

// Status returns the unit's active state. A non-zero exit from is-active is
// how systemd reports inactive units, so it is not an error.
func (m *Manager) Status(ctx context.Context, unit string) (State, error) {
	out, err := m.runner.Run(ctx, exec.Join("systemctl", "is-active", unit))
	state := State(strings.TrimSpace(out))
	if err != nil {
		if exec.ExitCode(err) > 0 {
			if state == "" {
				state = StateUnknown
			}
			return state, nil
		}
		return StateUnknown, fmt.Errorf("failed to query %s: %w", unit, err)
	}
	return state, nil
}

// IsActive reports whether the unit is active. It is usable directly as a
// readiness probe.
func (m *Manager) IsActive(ctx context.Context, unit string) (bool, error) {
	state, err := m.Status(ctx, unit)
	if err != nil {
		return false, err
	}
	return state == StateActive, nil
}

func (m *Manager) systemctl(ctx context.Context, args ...string) error {
	cmd := exec.Join(append([]string{"systemctl"}, args...)...)
	if _, err := m.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// UnitPath returns the path of an installed unit file.
func UnitPath(name string) string {
	return UnitDir + "/" + name
}

