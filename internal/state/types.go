package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable is returned when the backing medium cannot be read or written.
var ErrStoreUnavailable = errors.New("state store unavailable")

// Status is the lifecycle state of a single phase.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// IsTerminal reports whether no further transition is expected without a new run.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) String() string {
	if s == "" {
		return string(StatusPending)
	}
	return string(s)
}

// Record is the persisted execution record of one phase.
type Record struct {
	Phase     string    `yaml:"phase"`
	Status    Status    `yaml:"status"`
	Attempts  int       `yaml:"attempts"`
	UpdatedAt time.Time `yaml:"updatedAt"`
	LastError string    `yaml:"lastError,omitempty"`
	RunID     string    `yaml:"runID,omitempty"`
}

// Result is the outcome handed to RecordResult.
type Result struct {
	Status Status
	Err    error
}

// Store is the durable mapping from phase ID to Record.
//
// Writes are synchronous: when a method returns nil the record is durable.
type Store interface {
	// RecordStart marks the phase Running and increments its attempt count.
	RecordStart(ctx context.Context, phase string) error

	// RecordResult stores the terminal status of the phase.
	RecordResult(ctx context.Context, phase string, result Result) error

	// Load returns every stored record keyed by phase ID.
	Load(ctx context.Context) (map[string]Record, error)

	// Reset deletes the records of the given phases, or all records when none are given.
	Reset(ctx context.Context, phases ...string) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// nextStart returns rec moved to Running with one more attempt.
func nextStart(rec Record, phase, runID string, now time.Time) Record {
	rec.Phase = phase
	rec.Status = StatusRunning
	rec.Attempts++
	rec.UpdatedAt = now
	rec.LastError = ""
	rec.RunID = runID
	return rec
}

// withResult returns rec updated with result.
func withResult(rec Record, phase, runID string, result Result, now time.Time) Record {
	rec.Phase = phase
	rec.Status = result.Status
	rec.UpdatedAt = now
	rec.RunID = runID
	rec.LastError = ""
	if result.Err != nil {
		rec.LastError = result.Err.Error()
	}
	return rec
}
