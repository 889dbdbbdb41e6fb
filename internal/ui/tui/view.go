package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderPhases(&b, m)
	renderErrors(&b, m)
	if m.Mode == "apply" {
		renderFooter(&b, m)
	}

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("kubestrap: %s", m.ClusterName)
	if m.NodeName != "" {
		title += fmt.Sprintf(" (%s)", m.NodeName)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Done || allSucceeded(m):
		status += readyStyle.Render("Ready")
	case m.Mode == "status":
		status += warningStyle.Render("Incomplete")
	default:
		if cur := m.current(); cur != nil {
			status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render(cur.ID)
		} else {
			status += dimStyle.Render("Starting...")
		}
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	pct := int(progress * 100)
	eta := ""
	if m.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}

	fmt.Fprintf(b, "  %s %d%%%s\n", bar, pct, eta)
}

func renderPhases(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Phases"))
	b.WriteString("\n")

	for _, phase := range m.Phases {
		icon, style := phaseIcon(phase.Status, m.SpinnerFrame)

		extra := ""
		switch phase.Status {
		case PhaseRunning:
			if phase.Attempt > 1 {
				extra = sf(warningStyle)(fmt.Sprintf("attempt %d", phase.Attempt))
			}
		case PhaseRetrying:
			extra = sf(warningStyle)(fmt.Sprintf("retrying after attempt %d", phase.Attempt))
		case PhaseWaiting:
			extra = sf(activeStyle)(fmt.Sprintf("waiting for readiness (probe %d)", phase.Probes))
		case PhaseSucceeded, PhaseFailed:
			if phase.Duration > 0 {
				extra = sf(dimStyle)(formatDuration(phase.Duration))
			}
		case PhaseSkipped:
			extra = sf(dimStyle)("already done")
		}
		if phase.Status == PhaseSucceeded && m.Mode == "status" && phase.Attempt > 0 {
			extra = sf(dimStyle)(fmt.Sprintf("%d attempt(s)", phase.Attempt))
		}

		fmt.Fprintf(b, "    %s %-20s %s\n", style(icon), style(phase.ID), extra)
	}
}

func renderErrors(b *strings.Builder, m Model) {
	var lines []string
	for _, p := range m.Phases {
		if p.LastError != "" && (p.Status == PhaseFailed || p.Status == PhaseRetrying) {
			lines = append(lines, fmt.Sprintf("    %s [%s] %s",
				failedStyle.Render(crossMark), p.ID, dimStyle.Render(truncate(p.LastError, 200))))
		}
	}
	if len(lines) == 0 {
		return
	}

	b.WriteString(sectionStyle.Render("  Errors"))
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := formatDuration(time.Since(m.StartTime))
	b.WriteString(footerStyle.Render(fmt.Sprintf("  elapsed: %s  |  q: quit", elapsed)))
	b.WriteString("\n")
}

// Helper functions

func phaseIcon(status PhaseStatus, frame int) (string, styleFunc) {
	switch status {
	case PhaseSucceeded:
		return checkMark, sf(readyStyle)
	case PhaseFailed:
		return crossMark, sf(failedStyle)
	case PhaseSkipped:
		return skipMark, sf(readyStyle)
	case PhaseRetrying:
		return warnMark, sf(warningStyle)
	case PhaseRunning, PhaseWaiting:
		return currentSpinner(frame), sf(activeStyle)
	default:
		return pending, sf(dimStyle)
	}
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func allSucceeded(m Model) bool {
	if len(m.Phases) == 0 {
		return false
	}
	for _, p := range m.Phases {
		if p.Status != PhaseSucceeded && p.Status != PhaseSkipped {
			return false
		}
	}
	return true
}

func calculateProgress(m Model) float64 {
	if m.Done {
		return 1.0
	}
	if len(m.Phases) == 0 {
		return 0
	}
	done := 0
	for _, p := range m.Phases {
		if p.Status == PhaseSucceeded || p.Status == PhaseSkipped {
			done++
		}
	}
	return float64(done) / float64(len(m.Phases))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
