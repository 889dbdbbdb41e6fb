package bootstrap

import (
	"context"

	"github.com/imamik/kubestrap/internal/convergence"
)

// Action performs the work of a phase. It must be safe to call again after a
// partial or complete previous run.
type Action func(ctx context.Context) error

// Phase is a named unit of bootstrap work.
type Phase struct {
	// ID is unique within a Graph and names the phase's state record.
	ID          string
	Description string

	// Prerequisites lists phase IDs that must succeed before this phase runs.
	Prerequisites []string

	Action Action

	// Readiness, when set, must report ready after Action succeeds before the
	// phase counts as Succeeded.
	Readiness *convergence.Check

	// MaxAttempts overrides the orchestrator's action attempt bound when > 0.
	MaxAttempts int
}
