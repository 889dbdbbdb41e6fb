package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type options struct {
	runID string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*options)

// WithRunID sets the run ID stamped on every record written by the store.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		runID: uuid.NewString(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// validatePhaseID rejects IDs that cannot be used as a file or object name.
func validatePhaseID(phase string) error {
	if strings.TrimSpace(phase) == "" {
		return fmt.Errorf("phase ID is required")
	}
	// Load skips dot files.
	if strings.ContainsAny(phase, `/\`) || strings.HasPrefix(phase, ".") {
		return fmt.Errorf("phase ID %q is not a valid record name", phase)
	}
	return nil
}
