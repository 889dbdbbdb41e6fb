package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/kubestrap/internal/convergence"
	"github.com/imamik/kubestrap/internal/state"
	"github.com/imamik/kubestrap/internal/util/retry"
)

func TestActionExecutor(t *testing.T) {
	t.Parallel()
	ex := ActionExecutor{}

	out := ex.Execute(context.Background(), Phase{ID: "ok", Action: noop})
	assert.True(t, out.Succeeded())

	boom := errors.New("boom")
	out = ex.Execute(context.Background(), Phase{ID: "err", Action: func(context.Context) error { return boom }})
	require.False(t, out.Succeeded())
	var failure *ActionFailure
	require.ErrorAs(t, out.Err, &failure)
	assert.Equal(t, "err", failure.Phase)
	assert.ErrorIs(t, out.Err, boom)

	out = ex.Execute(context.Background(), Phase{ID: "panic", Action: func(context.Context) error { panic("nil map") }})
	require.False(t, out.Succeeded())
	assert.Contains(t, out.Err.Error(), "panic: nil map")

	out = ex.Execute(context.Background(), Phase{ID: "none"})
	assert.ErrorIs(t, out.Err, ErrInvalidPhase)
}

func TestOrchestrator_CompletesInOrder(t *testing.T) {
	t.Parallel()
	var order []string
	record := func(id string) Action {
		return func(context.Context) error { order = append(order, id); return nil }
	}
	g, err := NewGraph(
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: record("b")},
		Phase{ID: "a", Action: record("a")},
		Phase{ID: "c", Prerequisites: []string{"b"}, Action: record("c")},
	)
	require.NoError(t, err)
	store := state.NewMemoryStore()
	events := &eventLog{}

	o := New(g, store, WithObserver(events), WithRetryPolicy(fastRetry(3)))
	report, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.State)
	assert.Equal(t, RunCompleted, o.State())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []string{"a", "b", "c"}, report.Executed())

	recs, err := store.Load(context.Background())
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, state.StatusSucceeded, recs[id].Status, id)
		assert.Equal(t, 1, recs[id].Attempts, id)
	}

	assert.Equal(t, []EventType{EventPhaseStarted, EventPhaseCompleted}, events.types("a"))
	all := events.types("")
	assert.Equal(t, EventRunStarted, all[0])
	assert.Equal(t, EventRunCompleted, all[len(all)-1])
}

func TestOrchestrator_ResumeSkipsSucceeded(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 0)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0)},
	)
	require.NoError(t, err)

	store := state.NewMemoryStore()
	store.Put(state.Record{Phase: "a", Status: state.StatusSucceeded, Attempts: 1})
	store.Put(state.Record{Phase: "b", Status: state.StatusSucceeded, Attempts: 2})

	report, err := New(g, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.total())
	assert.Empty(t, report.Executed())

	b, ok := report.Phase("b")
	require.True(t, ok)
	assert.True(t, b.Skipped)
	assert.Equal(t, state.StatusSucceeded, b.Status)
}

func TestOrchestrator_ResumeRerunsFailedAndRunning(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 0)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0)},
		Phase{ID: "c", Prerequisites: []string{"b"}, Action: c.action("c", 0)},
	)
	require.NoError(t, err)

	store := state.NewMemoryStore()
	store.Put(state.Record{Phase: "a", Status: state.StatusSucceeded, Attempts: 1})
	store.Put(state.Record{Phase: "b", Status: state.StatusRunning, Attempts: 1})

	_, err = New(g, store, WithRetryPolicy(fastRetry(3))).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.count("a"))
	assert.Equal(t, 1, c.count("b"))
	assert.Equal(t, 1, c.count("c"))

	recs, _ := store.Load(context.Background())
	assert.Equal(t, 2, recs["b"].Attempts)
}

func TestOrchestrator_RetriesWithinBound(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 2)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0)},
	)
	require.NoError(t, err)
	events := &eventLog{}
	store := state.NewMemoryStore()

	report, err := New(g, store, WithObserver(events), WithRetryPolicy(fastRetry(3))).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, c.count("a"))
	assert.Equal(t, 1, c.count("b"))
	a, _ := report.Phase("a")
	assert.Equal(t, 3, a.Attempts)
	assert.Equal(t, state.StatusSucceeded, a.Status)
	assert.Equal(t, []EventType{
		EventPhaseStarted, EventPhaseRetrying,
		EventPhaseStarted, EventPhaseRetrying,
		EventPhaseStarted, EventPhaseCompleted,
	}, events.types("a"))

	recs, _ := store.Load(context.Background())
	assert.Equal(t, 3, recs["a"].Attempts)
	assert.Empty(t, recs["a"].LastError)
}

func TestOrchestrator_ExhaustedRetriesAbort(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 10)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0)},
	)
	require.NoError(t, err)
	store := state.NewMemoryStore()

	o := New(g, store, WithRetryPolicy(fastRetry(3)))
	report, err := o.Run(context.Background())

	require.Error(t, err)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "a", abort.Phase)
	assert.Equal(t, 3, abort.Attempts)
	assert.ErrorIs(t, err, errFlaky)

	assert.Equal(t, RunAborted, report.State)
	assert.Equal(t, RunAborted, o.State())
	assert.Equal(t, 3, c.count("a"))
	assert.Equal(t, 0, c.count("b"))

	b, _ := report.Phase("b")
	assert.Equal(t, state.StatusPending, b.Status)

	recs, _ := store.Load(context.Background())
	assert.Equal(t, state.StatusFailed, recs["a"].Status)
	assert.Contains(t, recs["a"].LastError, "flaky")
	assert.NotContains(t, recs, "b")
}

func TestOrchestrator_PerPhaseAttemptOverride(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(Phase{ID: "a", Action: c.action("a", 10), MaxAttempts: 5})
	require.NoError(t, err)

	_, err = New(g, state.NewMemoryStore(), WithRetryPolicy(fastRetry(2))).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 5, c.count("a"))
}

func TestOrchestrator_FatalActionErrorNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	g, err := NewGraph(Phase{ID: "a", Action: func(context.Context) error {
		calls++
		return retry.Fatal(errors.New("kubeadm config rejected"))
	}})
	require.NoError(t, err)

	_, err = New(g, state.NewMemoryStore(), WithRetryPolicy(fastRetry(5))).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "kubeadm config rejected")
}

func TestOrchestrator_ReadinessTimeoutAborts(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 0)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0), Readiness: neverReady(3)},
		Phase{ID: "c", Prerequisites: []string{"b"}, Action: c.action("c", 0)},
	)
	require.NoError(t, err)
	store := state.NewMemoryStore()

	report, err := New(g, store, WithRetryPolicy(fastRetry(3))).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, convergence.ErrTimedOut)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "b", abort.Phase)
	assert.Equal(t, 1, abort.Attempts)

	// The action is not re-run when only readiness failed.
	assert.Equal(t, 1, c.count("b"))
	assert.Equal(t, 0, c.count("c"))

	b, _ := report.Phase("b")
	require.NotNil(t, b.Readiness)
	assert.Equal(t, 3, b.Readiness.Attempts)

	recs, _ := store.Load(context.Background())
	assert.Equal(t, state.StatusSucceeded, recs["a"].Status)
	assert.Equal(t, state.StatusFailed, recs["b"].Status)
	assert.NotContains(t, recs, "c")
}

func TestOrchestrator_CancellationNeverMarksSucceeded(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := NewGraph(
		Phase{ID: "a", Action: noop},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}},
		Phase{ID: "c", Prerequisites: []string{"b"}, Action: noop},
	)
	require.NoError(t, err)
	store := state.NewMemoryStore()

	report, err := New(g, store, WithRetryPolicy(fastRetry(3))).Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunAborted, report.State)

	recs, _ := store.Load(context.Background())
	assert.Equal(t, state.StatusSucceeded, recs["a"].Status)
	assert.Equal(t, state.StatusFailed, recs["b"].Status)
	assert.Equal(t, 1, recs["b"].Attempts)
	assert.Contains(t, recs["b"].LastError, "interrupted")
	assert.NotContains(t, recs, "c")
}

func TestOrchestrator_CancelledDuringReadiness(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := NewGraph(Phase{ID: "a", Action: noop, Readiness: &convergence.Check{
		Probe: func(context.Context) (bool, error) {
			cancel()
			return false, nil
		},
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	}})
	require.NoError(t, err)
	store := state.NewMemoryStore()

	_, err = New(g, store).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	recs, _ := store.Load(context.Background())
	assert.Equal(t, state.StatusFailed, recs["a"].Status)
}

func TestOrchestrator_StoreUnavailableIsFatal(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(Phase{ID: "a", Action: c.action("a", 0)})
	require.NoError(t, err)

	store := state.NewMemoryStore()
	store.FailWith = errors.New("read-only file system")

	report, err := New(g, store).Run(context.Background())
	assert.ErrorIs(t, err, state.ErrStoreUnavailable)
	assert.Equal(t, RunAborted, report.State)
	assert.Equal(t, 0, c.total())
}

// failingStartStore loads fine but rejects every write.
type failingStartStore struct {
	*state.MemoryStore
}

func (failingStartStore) RecordStart(context.Context, string) error {
	return errors.Join(state.ErrStoreUnavailable, errors.New("disk full"))
}

func TestOrchestrator_StoreWriteFailureAbortsWithoutRunning(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(Phase{ID: "a", Action: c.action("a", 0)})
	require.NoError(t, err)

	_, err = New(g, failingStartStore{state.NewMemoryStore()}, WithRetryPolicy(fastRetry(3))).Run(context.Background())

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "a", abort.Phase)
	assert.Equal(t, 1, abort.Attempts)
	assert.ErrorIs(t, err, state.ErrStoreUnavailable)
	assert.Equal(t, 0, c.total())
}

func TestOrchestrator_InvalidGraphAborts(t *testing.T) {
	t.Parallel()
	g, err := NewGraph(phase("a", "b"), phase("b", "a"))
	require.NoError(t, err)

	report, err := New(g, state.NewMemoryStore()).Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleDetected)
	assert.Equal(t, RunAborted, report.State)
	assert.Empty(t, report.Phases)
}

func TestOrchestrator_DryRunExecutor(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 0)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0)},
	)
	require.NoError(t, err)

	var visited []string
	_, err = New(g, state.NewMemoryStore(), WithExecutor(DryRunExecutor{
		Visit: func(p Phase) { visited = append(visited, p.ID) },
	})).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, visited)
	assert.Equal(t, 0, c.total())
}

func TestOrchestrator_WithoutReadinessSkipsChecks(t *testing.T) {
	t.Parallel()
	polls := 0
	check := neverReady(3)
	check.Probe = func(context.Context) (bool, error) {
		polls++
		return false, nil
	}
	g, err := NewGraph(Phase{ID: "system-prep", Action: func(context.Context) error { return nil }, Readiness: check})
	require.NoError(t, err)

	report, err := New(g, state.NewMemoryStore(),
		WithExecutor(DryRunExecutor{}),
		WithoutReadiness(),
	).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.State)
	assert.Zero(t, polls)
	p, _ := report.Phase("system-prep")
	assert.Nil(t, p.Readiness)
}

func TestLogObserver(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "a", Action: c.action("a", 1)},
		Phase{ID: "b", Prerequisites: []string{"a"}, Action: c.action("b", 0), Readiness: neverReady(2)},
	)
	require.NoError(t, err)

	obs := NewLogObserver(testr.NewWithOptions(t, testr.Options{Verbosity: 1}))
	_, err = New(g, state.NewMemoryStore(), WithObserver(obs), WithRetryPolicy(fastRetry(2))).Run(context.Background())
	assert.Error(t, err)
}
