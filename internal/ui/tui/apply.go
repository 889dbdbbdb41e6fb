package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/kubestrap/internal/bootstrap"
)

// RunFunc runs a bootstrap, reporting progress to obs.
type RunFunc func(ctx context.Context, obs bootstrap.Observer) error

// Observer forwards orchestrator events to a Bubble Tea program.
type Observer struct {
	send func(tea.Msg)
}

// NewObserver returns an Observer sending through send, usually
// (*tea.Program).Send.
func NewObserver(send func(tea.Msg)) *Observer {
	return &Observer{send: send}
}

// Event implements bootstrap.Observer.
func (o *Observer) Event(e bootstrap.Event) {
	o.send(PhaseEventMsg{Event: e})
}

// RunApplyTUI wraps a bootstrap run with a Bubble Tea TUI. Quitting the TUI
// cancels the run and waits for it to record its state.
func RunApplyTUI(ctx context.Context, run RunFunc, m Model) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(m, tea.WithAltScreen())

	runErr := make(chan error, 1)
	go func() {
		err := run(ctx, NewObserver(p.Send))
		if err != nil {
			p.Send(ErrMsg{Err: err})
		} else {
			p.Send(DoneMsg{})
		}
		runErr <- err
	}()

	finalModel, err := p.Run()
	cancel()
	bootstrapErr := <-runErr
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	if bootstrapErr != nil {
		return bootstrapErr
	}

	fm := finalModel.(Model)
	if fm.Err != nil {
		return fm.Err
	}
	return nil
}
