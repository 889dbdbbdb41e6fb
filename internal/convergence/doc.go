// Package convergence polls readiness predicates until they report ready,
// the attempt budget is spent, an overall timeout elapses or the caller
// cancels.
//
// Probe errors are transient: a probe that errors counts as one not-ready
// attempt and polling continues. Only budget exhaustion or the timeout end the
// wait with ErrTimedOut.
package convergence
