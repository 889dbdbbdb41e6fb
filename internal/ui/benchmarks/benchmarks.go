// Package benchmarks provides timing estimates for bootstrap phases.
package benchmarks

import "time"

// DefaultTimings are typical phase durations on a fresh VM (seconds).
var DefaultTimings = map[string]int{
	"system-prep":        5,
	"container-runtime":  20,
	"control-plane-init": 120,
	"cni-install":        150,
	"monitoring-agents":  15,
}

// PhaseTiming is the observed duration of a finished phase.
type PhaseTiming struct {
	Phase    string
	Duration time.Duration
}

// EstimateRemaining calculates the estimated time remaining based on the
// current phase, its elapsed time and the phases already finished.
func EstimateRemaining(order []string, currentPhase string, phaseElapsed time.Duration, history []PhaseTiming) time.Duration {
	return EstimateRemainingWithScale(order, currentPhase, phaseElapsed, history, PerformanceScale(currentPhase, phaseElapsed, history))
}

// EstimateRemainingWithScale calculates ETA while applying a performance scale factor.
func EstimateRemainingWithScale(
	order []string,
	currentPhase string,
	phaseElapsed time.Duration,
	history []PhaseTiming,
	scale float64,
) time.Duration {
	var remaining time.Duration

	currentIdx := -1
	for i, p := range order {
		if p == currentPhase {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 {
		return 0
	}

	// For the current phase: max(0, expected - elapsed)
	if expected, ok := DefaultTimings[currentPhase]; ok {
		expectedDur := time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		if expectedDur > phaseElapsed {
			remaining += expectedDur - phaseElapsed
		}
	}

	completed := make(map[string]bool, len(history))
	for _, rec := range history {
		completed[rec.Phase] = true
	}

	for _, phase := range order[currentIdx+1:] {
		if completed[phase] {
			continue
		}
		if expected, ok := DefaultTimings[phase]; ok {
			remaining += time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		}
	}

	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: expected 2m, observed 3m => scale=1.5 (future ETAs are stretched by 50%).
func PerformanceScale(currentPhase string, phaseElapsed time.Duration, history []PhaseTiming) float64 {
	var expectedTotal time.Duration
	var actualTotal time.Duration

	for _, rec := range history {
		expectedSecs, ok := DefaultTimings[rec.Phase]
		if !ok {
			continue
		}
		expectedTotal += time.Duration(expectedSecs) * time.Second
		actualTotal += rec.Duration
	}

	// If current phase is overrunning, fold it in immediately so ETA adapts quickly.
	if expectedSecs, ok := DefaultTimings[currentPhase]; ok && phaseElapsed > 0 {
		expectedCurrent := time.Duration(expectedSecs) * time.Second
		if phaseElapsed > expectedCurrent {
			expectedTotal += expectedCurrent
			actualTotal += phaseElapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.6 {
		return 0.6
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// TotalEstimate returns the total estimated bootstrap time for order.
func TotalEstimate(order []string) time.Duration {
	var total time.Duration
	for _, phase := range order {
		if secs, ok := DefaultTimings[phase]; ok {
			total += time.Duration(secs) * time.Second
		}
	}
	return total
}
