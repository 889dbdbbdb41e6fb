package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/kubestrap/internal/state"
)

const metricsNamespace = "kubestrap"

// Metrics records bootstrap progress as Prometheus metrics. It implements
// Observer and owns a private registry so that the metrics can be exported
// to the node_exporter textfile collector after the run.
type Metrics struct {
	registry *prometheus.Registry

	phaseAttempts *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	phaseStatus   *prometheus.GaugeVec
	probeAttempts *prometheus.CounterVec
	runSuccess    prometheus.Gauge
	runTimestamp  prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics creates the collectors and registers them on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		phaseAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "phase",
				Name:      "attempts_total",
				Help:      "Phase action attempts by result",
			},
			[]string{"phase", "result"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "phase",
				Name:      "duration_seconds",
				Help:      "Time from first attempt to terminal status of a phase",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
			[]string{"phase"},
		),
		phaseStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "phase",
				Name:      "status",
				Help:      "1 for the current status of each phase, 0 otherwise",
			},
			[]string{"phase", "status"},
		),
		probeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "readiness",
				Name:      "not_ready_total",
				Help:      "Readiness probe attempts that reported not ready",
			},
			[]string{"phase"},
		),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "run",
			Name:      "success",
			Help:      "1 if the last bootstrap run completed, 0 if it aborted",
		}),
		runTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "run",
			Name:      "last_timestamp_seconds",
			Help:      "Unix time the last bootstrap run finished",
		}),
		started: make(map[string]time.Time),
	}

	m.registry.MustRegister(
		m.phaseAttempts,
		m.phaseDuration,
		m.phaseStatus,
		m.probeAttempts,
		m.runSuccess,
		m.runTimestamp,
	)
	return m
}

// Registry returns the registry holding the bootstrap metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Event implements Observer.
func (m *Metrics) Event(e Event) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch e.Type {
	case EventPhaseSkipped:
		m.setStatus(e.Phase, state.StatusSucceeded)
	case EventPhaseStarted:
		m.mu.Lock()
		if _, ok := m.started[e.Phase]; !ok {
			m.started[e.Phase] = ts
		}
		m.mu.Unlock()
		m.setStatus(e.Phase, state.StatusRunning)
	case EventPhaseRetrying:
		m.phaseAttempts.WithLabelValues(e.Phase, "failure").Inc()
	case EventPhaseCompleted:
		m.phaseAttempts.WithLabelValues(e.Phase, "success").Inc()
		m.observeDuration(e.Phase, ts)
		m.setStatus(e.Phase, state.StatusSucceeded)
	case EventPhaseFailed:
		m.phaseAttempts.WithLabelValues(e.Phase, "failure").Inc()
		m.observeDuration(e.Phase, ts)
		m.setStatus(e.Phase, state.StatusFailed)
	case EventReadinessWaiting:
		m.probeAttempts.WithLabelValues(e.Phase).Inc()
	case EventRunCompleted:
		m.runSuccess.Set(1)
		m.runTimestamp.Set(float64(ts.Unix()))
	case EventRunAborted:
		m.runSuccess.Set(0)
		m.runTimestamp.Set(float64(ts.Unix()))
	}
}

func (m *Metrics) setStatus(phase string, current state.Status) {
	for _, s := range []state.Status{state.StatusPending, state.StatusRunning, state.StatusSucceeded, state.StatusFailed} {
		v := 0.0
		if s == current {
			v = 1
		}
		m.phaseStatus.WithLabelValues(phase, s.String()).Set(v)
	}
}

func (m *Metrics) observeDuration(phase string, end time.Time) {
	m.mu.Lock()
	start, ok := m.started[phase]
	delete(m.started, phase)
	m.mu.Unlock()
	if ok {
		m.phaseDuration.WithLabelValues(phase).Observe(end.Sub(start).Seconds())
	}
}

// WriteTextfile writes the metrics in text exposition format to path,
// replacing the file atomically. path should end in .prom to be picked up by
// the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { // #nosec G301
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
