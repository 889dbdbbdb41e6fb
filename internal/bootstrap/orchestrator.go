package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imamik/kubestrap/internal/convergence"
	"github.com/imamik/kubestrap/internal/state"
	"github.com/imamik/kubestrap/internal/util/retry"
)

// RunState is the lifecycle state of an orchestrator run.
type RunState string

const (
	RunInitializing RunState = "Initializing"
	RunExecuting    RunState = "Executing"
	RunCompleted    RunState = "Completed"
	RunAborted      RunState = "Aborted"
)

// RetryPolicy bounds the attempts of a failing phase action.
type RetryPolicy struct {
	// MaxAttempts is the total number of action attempts per phase and run.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// PhaseReport is the per-phase summary of a run.
type PhaseReport struct {
	ID     string
	Status state.Status

	// Attempts counts action attempts made in this run.
	Attempts int

	// Skipped is true when the phase had already succeeded in an earlier run.
	Skipped bool

	// Readiness holds the readiness poll result when a check ran.
	Readiness *convergence.Result

	Duration time.Duration
	Err      error
}

// Report summarizes a run.
type Report struct {
	State    RunState
	Phases   []PhaseReport
	Duration time.Duration

	// Err is the AbortError of an aborted run.
	Err error
}

// Phase returns the report for the phase with the given ID.
func (r *Report) Phase(id string) (PhaseReport, bool) {
	for _, p := range r.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseReport{}, false
}

// Executed returns the IDs of phases whose action ran at least once.
func (r *Report) Executed() []string {
	var out []string
	for _, p := range r.Phases {
		if p.Attempts > 0 {
			out = append(out, p.ID)
		}
	}
	return out
}

// Orchestrator drives a Graph to completion against a state.Store.
type Orchestrator struct {
	graph    *Graph
	store    state.Store
	executor Executor
	observer Observer
	retry    RetryPolicy
	now      func() time.Time

	skipReadiness bool

	mu       sync.Mutex
	runState RunState
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExecutor replaces the ActionExecutor.
func WithExecutor(e Executor) Option {
	return func(o *Orchestrator) {
		o.executor = e
	}
}

// WithoutReadiness skips every phase's readiness check. Dry runs use it so
// nothing is polled on the node.
func WithoutReadiness() Option {
	return func(o *Orchestrator) {
		o.skipReadiness = true
	}
}

// WithObserver sets the event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithRetryPolicy sets the action retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New returns an orchestrator for graph persisting progress in store.
func New(graph *Graph, store state.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:    graph,
		store:    store,
		executor: ActionExecutor{},
		observer: MultiObserver{},
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
		runState: RunInitializing,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runState
}

func (o *Orchestrator) setState(s RunState) {
	o.mu.Lock()
	o.runState = s
	o.mu.Unlock()
}

func (o *Orchestrator) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = o.now()
	}
	o.observer.Event(e)
}

// Run executes every phase not yet recorded as Succeeded, in topological
// order. It stops at the first phase that fails permanently; downstream
// phases are not attempted. The returned Report is never nil. The error is
// nil when the run completed and an *AbortError otherwise.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := o.now()
	o.setState(RunInitializing)
	report := &Report{State: RunInitializing}

	order, err := o.graph.TopologicalOrder()
	if err != nil {
		return o.abort(report, start, &AbortError{Err: err})
	}
	for _, id := range order {
		report.Phases = append(report.Phases, PhaseReport{ID: id, Status: state.StatusPending})
	}

	records, err := o.store.Load(ctx)
	if err != nil {
		return o.abort(report, start, &AbortError{Err: fmt.Errorf("failed to load state: %w", err)})
	}

	o.setState(RunExecuting)
	report.State = RunExecuting
	o.emit(Event{
		Type:    EventRunStarted,
		Message: fmt.Sprintf("starting bootstrap with %d phases", len(order)),
	})

	for i, id := range order {
		pr := &report.Phases[i]

		if rec, ok := records[id]; ok && rec.Status == state.StatusSucceeded {
			pr.Status = state.StatusSucceeded
			pr.Skipped = true
			o.emit(Event{Type: EventPhaseSkipped, Phase: id, Message: "already succeeded"})
			continue
		}

		if err := ctx.Err(); err != nil {
			return o.abort(report, start, &AbortError{Phase: id, Err: fmt.Errorf("interrupted: %w", err)})
		}

		phase, _ := o.graph.Phase(id)
		if err := o.runPhase(ctx, phase, pr); err != nil {
			return o.abort(report, start, err)
		}
	}

	o.setState(RunCompleted)
	report.State = RunCompleted
	report.Duration = o.now().Sub(start)
	o.emit(Event{
		Type:     EventRunCompleted,
		Message:  "bootstrap completed",
		Duration: report.Duration,
	})
	return report, nil
}

// runPhase executes one phase with retries and its readiness gate, recording
// every transition in the store. It returns nil when the phase succeeded.
func (o *Orchestrator) runPhase(ctx context.Context, phase Phase, pr *PhaseReport) *AbortError {
	phaseStart := o.now()
	// Terminal records are written even after ctx is cancelled so an
	// interrupted phase is never left looking like it is still running.
	recordCtx := context.WithoutCancel(ctx)

	policy := o.retry
	if phase.MaxAttempts > 0 {
		policy.MaxAttempts = phase.MaxAttempts
	}

	var storeErr error
	attempts, err := retry.Do(ctx, func(attempt int) error {
		if err := o.store.RecordStart(ctx, phase.ID); err != nil {
			storeErr = err
			return retry.Fatal(err)
		}
		pr.Status = state.StatusRunning
		o.emit(Event{Type: EventPhaseStarted, Phase: phase.ID, Attempt: attempt, Message: "starting"})

		out := o.executor.Execute(ctx, phase)
		if out.Succeeded() {
			return nil
		}
		if err := o.store.RecordResult(recordCtx, phase.ID, state.Result{Status: state.StatusFailed, Err: out.Err}); err != nil {
			storeErr = err
			return retry.Fatal(err)
		}
		if ctx.Err() != nil {
			return retry.Fatal(out.Err)
		}
		return out.Err
	},
		retry.WithMaxAttempts(policy.MaxAttempts),
		retry.WithInitialDelay(policy.InitialDelay),
		retry.WithMaxDelay(policy.MaxDelay),
		retry.WithMultiplier(policy.Multiplier),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			o.emit(Event{
				Type:    EventPhaseRetrying,
				Phase:   phase.ID,
				Attempt: attempt,
				Err:     err,
				Message: fmt.Sprintf("attempt failed, retrying in %v", delay),
			})
		}),
	)
	pr.Attempts = attempts

	if err != nil {
		if storeErr != nil {
			return o.failPhase(recordCtx, phase, pr, phaseStart, storeErr, false)
		}
		var fatal *retry.FatalError
		if errors.As(err, &fatal) {
			err = fatal.Err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("interrupted: %w", errors.Join(ctxErr, err))
		}
		return o.failPhase(recordCtx, phase, pr, phaseStart, err, true)
	}

	if phase.Readiness != nil && !o.skipReadiness {
		poller := &convergence.Poller{
			OnNotReady: func(check string, attempt int, probeErr error) {
				o.emit(Event{
					Type:    EventReadinessWaiting,
					Phase:   phase.ID,
					Attempt: attempt,
					Err:     probeErr,
					Message: fmt.Sprintf("waiting for %s", check),
				})
			},
		}
		res, err := poller.WaitFor(ctx, *phase.Readiness)
		pr.Readiness = &res
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("interrupted: %w", err)
			}
			return o.failPhase(recordCtx, phase, pr, phaseStart, err, true)
		}
	}

	if err := o.store.RecordResult(recordCtx, phase.ID, state.Result{Status: state.StatusSucceeded}); err != nil {
		return o.failPhase(recordCtx, phase, pr, phaseStart, err, false)
	}
	pr.Status = state.StatusSucceeded
	pr.Duration = o.now().Sub(phaseStart)
	o.emit(Event{
		Type:     EventPhaseCompleted,
		Phase:    phase.ID,
		Attempt:  pr.Attempts,
		Duration: pr.Duration,
		Message:  fmt.Sprintf("completed in %v", pr.Duration.Round(time.Millisecond)),
	})
	return nil
}

// failPhase marks the phase Failed in the report and, when persist is set,
// in the store.
func (o *Orchestrator) failPhase(ctx context.Context, phase Phase, pr *PhaseReport, phaseStart time.Time, cause error, persist bool) *AbortError {
	pr.Status = state.StatusFailed
	pr.Err = cause
	pr.Duration = o.now().Sub(phaseStart)

	if persist {
		if err := o.store.RecordResult(ctx, phase.ID, state.Result{Status: state.StatusFailed, Err: cause}); err != nil {
			cause = errors.Join(cause, err)
			pr.Err = cause
		}
	}

	o.emit(Event{
		Type:     EventPhaseFailed,
		Phase:    phase.ID,
		Attempt:  pr.Attempts,
		Duration: pr.Duration,
		Err:      cause,
		Message:  "phase failed",
	})
	return &AbortError{Phase: phase.ID, Attempts: pr.Attempts, Err: cause}
}

func (o *Orchestrator) abort(report *Report, start time.Time, err *AbortError) (*Report, error) {
	o.setState(RunAborted)
	report.State = RunAborted
	report.Duration = o.now().Sub(start)
	report.Err = err
	o.emit(Event{
		Type:     EventRunAborted,
		Phase:    err.Phase,
		Attempt:  err.Attempts,
		Duration: report.Duration,
		Err:      err.Err,
		Message:  "bootstrap aborted",
	})
	return report, err
}
