package tui

import (
	"github.com/imamik/kubestrap/internal/bootstrap"
	"github.com/imamik/kubestrap/internal/state"
)

// RenderStatus renders the stored phase records once, without a program.
// phases must be in execution order.
func RenderStatus(clusterName, nodeName string, phases []bootstrap.Phase, records map[string]state.Record) string {
	m := NewApplyModel(clusterName, nodeName, phases)
	m.Mode = "status"
	for i := range m.Phases {
		rec, ok := records[m.Phases[i].ID]
		if !ok {
			continue
		}
		m.Phases[i].Attempt = rec.Attempts
		m.Phases[i].LastError = rec.LastError
		switch rec.Status {
		case state.StatusSucceeded:
			m.Phases[i].Status = PhaseSucceeded
		case state.StatusFailed:
			m.Phases[i].Status = PhaseFailed
		case state.StatusRunning:
			m.Phases[i].Status = PhaseRunning
		}
	}
	return renderView(m)
}
