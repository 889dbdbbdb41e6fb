package bootstrap

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateIdentifier is returned when a phase ID is added twice.
	ErrDuplicateIdentifier = errors.New("duplicate phase identifier")

	// ErrCycleDetected is returned when prerequisites form a cycle.
	ErrCycleDetected = errors.New("phase dependency cycle detected")

	// ErrUnknownPrerequisite is returned when a prerequisite names no phase.
	ErrUnknownPrerequisite = errors.New("unknown prerequisite")

	// ErrInvalidPhase is returned for phases without an ID or action.
	ErrInvalidPhase = errors.New("invalid phase")
)

// CycleError reports the phases forming a dependency cycle. The path starts
// and ends with the same phase.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// ActionFailure is a phase action error, including recovered panics.
type ActionFailure struct {
	Phase string
	Err   error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *ActionFailure) Unwrap() error {
	return e.Err
}

// AbortError is returned by Orchestrator.Run when a phase failed permanently
// or the run was interrupted.
type AbortError struct {
	Phase    string
	Attempts int
	Err      error
}

func (e *AbortError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("bootstrap aborted: %v", e.Err)
	}
	return fmt.Sprintf("bootstrap aborted at phase %s after %d attempt(s): %v", e.Phase, e.Attempts, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
