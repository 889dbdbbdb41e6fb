package convergence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrTimedOut is returned when a check did not become ready within its budget.
var ErrTimedOut = errors.New("readiness check timed out")

// ErrInvalidCheck is returned for checks that cannot be polled.
var ErrInvalidCheck = errors.New("invalid readiness check")

// Probe reports whether the watched condition holds.
type Probe func(ctx context.Context) (bool, error)

// Check describes a readiness condition and its polling budget.
type Check struct {
	// Name is used in logs and errors.
	Name  string
	Probe Probe

	// Interval is the delay before the second attempt.
	Interval time.Duration

	// MaxAttempts is the maximum number of probe calls.
	MaxAttempts int

	// Timeout bounds the whole wait. Zero means only MaxAttempts applies.
	Timeout time.Duration

	// Backoff multiplies the interval after each attempt. Values <= 1 keep it fixed.
	Backoff float64

	// MaxInterval caps the interval when Backoff grows it.
	MaxInterval time.Duration
}

// Validate reports whether the check can be polled.
func (c Check) Validate() error {
	if c.Probe == nil {
		return fmt.Errorf("%w: %s: probe is required", ErrInvalidCheck, c.name())
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s: max attempts must be at least 1, got %d", ErrInvalidCheck, c.name(), c.MaxAttempts)
	}
	if c.Interval < 0 || c.Timeout < 0 || c.MaxInterval < 0 {
		return fmt.Errorf("%w: %s: durations must not be negative", ErrInvalidCheck, c.name())
	}
	return nil
}

func (c Check) name() string {
	if c.Name == "" {
		return "readiness"
	}
	return c.Name
}

// backoff returns the delay schedule between attempts.
func (c Check) backoff() wait.Backoff {
	b := wait.Backoff{
		Duration: c.Interval,
		Steps:    c.MaxAttempts,
	}
	if c.Backoff > 1 {
		b.Factor = c.Backoff
		b.Cap = c.MaxInterval
	}
	return b
}

// TransientProbeError is a probe failure that was treated as not-ready.
type TransientProbeError struct {
	Attempt int
	Err     error
}

func (e *TransientProbeError) Error() string {
	return fmt.Sprintf("probe attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransientProbeError) Unwrap() error {
	return e.Err
}

// Result summarizes a wait.
type Result struct {
	Ready    bool
	Attempts int

	// LastProbeErr is the most recent probe error, if any attempt errored.
	LastProbeErr error
}

// Poller runs readiness checks.
type Poller struct {
	// OnNotReady is called after every attempt that did not report ready.
	// probeErr is nil when the probe answered false without error.
	OnNotReady func(check string, attempt int, probeErr error)
}

// WaitFor polls check with a zero-value Poller.
func WaitFor(ctx context.Context, check Check) (Result, error) {
	return (&Poller{}).WaitFor(ctx, check)
}

// WaitFor calls check.Probe until it reports ready. The first attempt runs
// immediately. It makes at most check.MaxAttempts probe calls.
//
// The error is nil when the check became ready, wraps ErrTimedOut when the
// budget or timeout ran out, and is ctx.Err() when ctx was cancelled.
func (p *Poller) WaitFor(ctx context.Context, check Check) (Result, error) {
	var res Result
	if err := check.Validate(); err != nil {
		return res, err
	}

	pollCtx := ctx
	if check.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}

	backoff := check.backoff()
	for attempt := 1; attempt <= check.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if pollCtx.Err() != nil {
			break
		}

		res.Attempts = attempt
		ready, err := check.Probe(pollCtx)
		if err == nil && ready {
			res.Ready = true
			return res, nil
		}
		if err != nil {
			res.LastProbeErr = &TransientProbeError{Attempt: attempt, Err: err}
		}
		if p.OnNotReady != nil {
			p.OnNotReady(check.name(), attempt, err)
		}
		if attempt == check.MaxAttempts {
			break
		}

		// Once Cap is reached Step keeps returning the capped duration.
		delay := backoff.Step()
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-pollCtx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, timedOut(check, res)
}

func timedOut(check Check, res Result) error {
	if res.LastProbeErr != nil {
		return fmt.Errorf("%w: %s not ready after %d attempt(s): %w", ErrTimedOut, check.name(), res.Attempts, res.LastProbeErr)
	}
	return fmt.Errorf("%w: %s not ready after %d attempt(s)", ErrTimedOut, check.name(), res.Attempts)
}
