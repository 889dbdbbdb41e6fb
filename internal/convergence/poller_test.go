package convergence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingProbe(readyOn int, calls *int32) Probe {
	return func(context.Context) (bool, error) {
		n := atomic.AddInt32(calls, 1)
		return readyOn > 0 && int(n) >= readyOn, nil
	}
}

func TestWaitFor_ReadyOnThirdOfFive(t *testing.T) {
	t.Parallel()
	var calls int32

	res, err := WaitFor(context.Background(), Check{
		Name:        "apiserver",
		Probe:       countingProbe(3, &calls),
		Interval:    time.Millisecond,
		MaxAttempts: 5,
	})

	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWaitFor_ReadyOnFirstAttempt(t *testing.T) {
	t.Parallel()
	var calls int32

	res, err := WaitFor(context.Background(), Check{
		Probe:       countingProbe(1, &calls),
		Interval:    time.Hour,
		MaxAttempts: 3,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestWaitFor_NeverReady(t *testing.T) {
	t.Parallel()
	var calls int32

	res, err := WaitFor(context.Background(), Check{
		Name:        "calico",
		Probe:       countingProbe(0, &calls),
		Interval:    time.Millisecond,
		MaxAttempts: 4,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, res.Ready)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Nil(t, res.LastProbeErr)
}

func TestWaitFor_ProbeErrorsAreTransient(t *testing.T) {
	t.Parallel()
	refused := errors.New("connection refused")
	calls := 0

	res, err := WaitFor(context.Background(), Check{
		Probe: func(context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, refused
			}
			return true, nil
		},
		Interval:    time.Millisecond,
		MaxAttempts: 5,
	})

	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 3, res.Attempts)

	var transient *TransientProbeError
	require.ErrorAs(t, res.LastProbeErr, &transient)
	assert.Equal(t, 2, transient.Attempt)
	assert.ErrorIs(t, res.LastProbeErr, refused)
}

func TestWaitFor_TimedOutWrapsLastProbeError(t *testing.T) {
	t.Parallel()
	refused := errors.New("connection refused")

	res, err := WaitFor(context.Background(), Check{
		Probe:       func(context.Context) (bool, error) { return false, refused },
		Interval:    time.Millisecond,
		MaxAttempts: 2,
	})

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 2, res.Attempts)
}

func TestWaitFor_OverallTimeout(t *testing.T) {
	t.Parallel()
	var calls int32

	start := time.Now()
	res, err := WaitFor(context.Background(), Check{
		Probe:       countingProbe(0, &calls),
		Interval:    20 * time.Millisecond,
		MaxAttempts: 1000,
		Timeout:     50 * time.Millisecond,
	})

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, res.Attempts, 1000)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitFor_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	res, err := WaitFor(ctx, Check{
		Probe: func(context.Context) (bool, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return false, nil
		},
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimedOut))
	assert.False(t, res.Ready)
	assert.LessOrEqual(t, res.Attempts, 3)
}

func TestWaitFor_CancelledBeforeStart(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32

	res, err := WaitFor(ctx, Check{Probe: countingProbe(1, &calls), MaxAttempts: 3})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestWaitFor_BackoffCapKeepsAttemptBudget(t *testing.T) {
	t.Parallel()
	var calls int32

	res, err := WaitFor(context.Background(), Check{
		Probe:       countingProbe(0, &calls),
		Interval:    time.Millisecond,
		Backoff:     4,
		MaxInterval: 2 * time.Millisecond,
		MaxAttempts: 6,
	})

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, 6, res.Attempts)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
}

func TestPoller_OnNotReady(t *testing.T) {
	t.Parallel()
	var attempts []int
	p := &Poller{OnNotReady: func(check string, attempt int, _ error) {
		assert.Equal(t, "nodes", check)
		attempts = append(attempts, attempt)
	}}
	var calls int32

	_, err := p.WaitFor(context.Background(), Check{
		Name:        "nodes",
		Probe:       countingProbe(3, &calls),
		Interval:    time.Millisecond,
		MaxAttempts: 5,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestCheck_Validate(t *testing.T) {
	t.Parallel()
	probe := func(context.Context) (bool, error) { return true, nil }

	tests := []struct {
		name  string
		check Check
	}{
		{"no probe", Check{MaxAttempts: 1}},
		{"zero attempts", Check{Probe: probe}},
		{"negative interval", Check{Probe: probe, MaxAttempts: 1, Interval: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := WaitFor(context.Background(), tt.check)
			assert.ErrorIs(t, err, ErrInvalidCheck)
		})
	}
}
