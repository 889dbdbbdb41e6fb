package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/kubestrap/internal/bootstrap"
	"github.com/imamik/kubestrap/internal/ui/benchmarks"
)

// PhaseStatus is the display state of a phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseRetrying  PhaseStatus = "retrying"
	PhaseWaiting   PhaseStatus = "waiting"
	PhaseSucceeded PhaseStatus = "succeeded"
	PhaseSkipped   PhaseStatus = "skipped"
	PhaseFailed    PhaseStatus = "failed"
)

// PhaseRow is one phase line of the dashboard.
type PhaseRow struct {
	ID          string
	Description string
	Status      PhaseStatus
	Attempt     int
	Probes      int
	Duration    time.Duration
	StartedAt   time.Time
	LastError   string
}

// Model is the Bubble Tea model for the TUI dashboard.
type Model struct {
	ClusterName string
	NodeName    string

	Phases []PhaseRow

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool

	// Mode
	Mode string // "apply", "status"
}

// NewApplyModel creates a model for the apply command TUI. phases must be in
// execution order.
func NewApplyModel(clusterName, nodeName string, phases []bootstrap.Phase) Model {
	m := Model{
		ClusterName:      clusterName,
		NodeName:         nodeName,
		StartTime:        time.Now(),
		Mode:             "apply",
		PerformanceScale: 1.0,
	}
	for _, p := range phases {
		m.Phases = append(m.Phases, PhaseRow{ID: p.ID, Description: p.Description, Status: PhasePending})
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case PhaseEventMsg:
		m.applyEvent(msg.Event)

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA(time.Now())
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) row(id string) *PhaseRow {
	for i := range m.Phases {
		if m.Phases[i].ID == id {
			return &m.Phases[i]
		}
	}
	return nil
}

func (m *Model) applyEvent(e bootstrap.Event) {
	row := m.row(e.Phase)
	if row == nil {
		return
	}

	switch e.Type {
	case bootstrap.EventPhaseSkipped:
		row.Status = PhaseSkipped
	case bootstrap.EventPhaseStarted:
		if row.Status == PhasePending {
			row.StartedAt = e.Timestamp
		}
		row.Status = PhaseRunning
		row.Attempt = e.Attempt
	case bootstrap.EventPhaseRetrying:
		row.Status = PhaseRetrying
		if e.Err != nil {
			row.LastError = e.Err.Error()
		}
	case bootstrap.EventReadinessWaiting:
		row.Status = PhaseWaiting
		row.Probes = e.Attempt
	case bootstrap.EventPhaseCompleted:
		row.Status = PhaseSucceeded
		row.Duration = e.Duration
		row.LastError = ""
	case bootstrap.EventPhaseFailed:
		row.Status = PhaseFailed
		row.Duration = e.Duration
		if e.Err != nil {
			row.LastError = e.Err.Error()
		}
	}
}

// current returns the phase in progress, if any.
func (m *Model) current() *PhaseRow {
	for i := range m.Phases {
		switch m.Phases[i].Status {
		case PhaseRunning, PhaseRetrying, PhaseWaiting:
			return &m.Phases[i]
		}
	}
	return nil
}

func (m *Model) updateETA(now time.Time) {
	cur := m.current()
	if cur == nil {
		m.EstimatedRemaining = 0
		return
	}

	order := make([]string, 0, len(m.Phases))
	var history []benchmarks.PhaseTiming
	for _, p := range m.Phases {
		order = append(order, p.ID)
		if p.Status == PhaseSucceeded {
			history = append(history, benchmarks.PhaseTiming{Phase: p.ID, Duration: p.Duration})
		}
	}

	var elapsed time.Duration
	if !cur.StartedAt.IsZero() {
		elapsed = now.Sub(cur.StartedAt)
	}
	m.PerformanceScale = benchmarks.PerformanceScale(cur.ID, elapsed, history)
	m.EstimatedRemaining = benchmarks.EstimateRemainingWithScale(order, cur.ID, elapsed, history, m.PerformanceScale)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
