package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/imamik/kubestrap/internal/convergence"
)

var errFlaky = errors.New("flaky")

func fastRetry(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

// calls counts action invocations per phase.
type calls struct {
	mu sync.Mutex
	n  map[string]int
}

func newCalls() *calls {
	return &calls{n: map[string]int{}}
}

func (c *calls) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[id]
}

func (c *calls) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := 0
	for _, v := range c.n {
		sum += v
	}
	return sum
}

// action returns an action that fails the first failures invocations.
func (c *calls) action(id string, failures int) Action {
	return func(context.Context) error {
		c.mu.Lock()
		c.n[id]++
		n := c.n[id]
		c.mu.Unlock()
		if n <= failures {
			return errFlaky
		}
		return nil
	}
}

func neverReady(attempts int) *convergence.Check {
	return &convergence.Check{
		Name:        "never",
		Probe:       func(context.Context) (bool, error) { return false, nil },
		Interval:    time.Millisecond,
		MaxAttempts: attempts,
	}
}

// eventLog records observed events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Event(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types(phase string) []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventType
	for _, e := range l.events {
		if phase == "" || e.Phase == phase {
			out = append(out, e.Type)
		}
	}
	return out
}
