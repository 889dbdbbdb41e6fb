// Package bootstrap sequences node bootstrap phases.
//
// # Core Types
//
// Phase declares an idempotent action, its prerequisites and an optional
// readiness check. Graph holds the phases and yields a deterministic
// topological order. Executor runs a single phase action. Orchestrator walks
// the graph, consults the state store so completed phases are skipped on
// resume, retries failing actions within a bound, gates progression on
// readiness and aborts the run on the first permanent failure.
//
// Progress is reported through Observer events (phase.started,
// phase.completed, phase.failed and so on); LogObserver and Metrics are the
// built-in implementations.
package bootstrap
