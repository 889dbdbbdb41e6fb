package bootstrap

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Outcome is the result of one phase action invocation.
type Outcome struct {
	// Err is nil on success and an *ActionFailure otherwise.
	Err error
}

// Succeeded reports whether the action completed without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Executor runs a single phase action once.
type Executor interface {
	Execute(ctx context.Context, phase Phase) Outcome
}

// ActionExecutor invokes Phase.Action and converts errors and panics into a
// failed Outcome. It holds no state and may be reused across runs.
type ActionExecutor struct{}

// Execute implements Executor.
func (ActionExecutor) Execute(ctx context.Context, phase Phase) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: &ActionFailure{
				Phase: phase.ID,
				Err:   fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
			}}
		}
	}()

	if phase.Action == nil {
		return Outcome{Err: &ActionFailure{Phase: phase.ID, Err: fmt.Errorf("%w: no action", ErrInvalidPhase)}}
	}
	if err := phase.Action(ctx); err != nil {
		return Outcome{Err: &ActionFailure{Phase: phase.ID, Err: err}}
	}
	return Outcome{}
}

// DryRunExecutor reports every phase as succeeded without running it.
type DryRunExecutor struct {
	// Visit, when set, is called for every phase that would run.
	Visit func(phase Phase)
}

// Execute implements Executor.
func (d DryRunExecutor) Execute(_ context.Context, phase Phase) Outcome {
	if d.Visit != nil {
		d.Visit(phase)
	}
	return Outcome{}
}
