// Package tui provides a Bubble Tea-based terminal UI for bootstrap runs.
package tui

import "github.com/imamik/kubestrap/internal/bootstrap"

// PhaseEventMsg carries an orchestrator event.
type PhaseEventMsg struct {
	Event bootstrap.Event
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the operation is complete.
type DoneMsg struct{}
