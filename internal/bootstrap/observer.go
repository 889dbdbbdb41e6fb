package bootstrap

import (
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured progress events from the orchestrator.
// Implementations must not block.
type Observer interface {
	Event(event Event)
}

// Event is a structured bootstrap event.
type Event struct {
	Type      EventType
	Phase     string
	Message   string
	Attempt   int
	Duration  time.Duration
	Err       error
	Timestamp time.Time
	Fields    map[string]string
}

// EventType identifies the kind of event.
type EventType string

const (
	// EventRunStarted is emitted once the graph and stored records are loaded.
	EventRunStarted EventType = "run.started"
	// EventRunCompleted is emitted when every phase succeeded.
	EventRunCompleted EventType = "run.completed"
	// EventRunAborted is emitted when the run stops on a failure or cancellation.
	EventRunAborted EventType = "run.aborted"

	// EventPhaseSkipped indicates the phase already succeeded in an earlier run.
	EventPhaseSkipped EventType = "phase.skipped"
	// EventPhaseStarted indicates an attempt of the phase action has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseRetrying indicates a failed attempt that will be retried.
	EventPhaseRetrying EventType = "phase.retrying"
	// EventPhaseCompleted indicates the phase succeeded.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates the phase failed permanently.
	EventPhaseFailed EventType = "phase.failed"

	// EventReadinessWaiting indicates a readiness probe reported not ready.
	EventReadinessWaiting EventType = "readiness.waiting"
)

// LogObserver writes events to a logr.Logger.
type LogObserver struct {
	log logr.Logger
}

// NewLogObserver returns an observer logging through log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// Event implements Observer.
func (o *LogObserver) Event(e Event) {
	kv := []any{"event", string(e.Type)}
	if e.Phase != "" {
		kv = append(kv, "phase", e.Phase)
	}
	if e.Attempt > 0 {
		kv = append(kv, "attempt", e.Attempt)
	}
	if e.Duration > 0 {
		kv = append(kv, "duration", e.Duration.Round(time.Millisecond).String())
	}
	for k, v := range e.Fields {
		kv = append(kv, k, v)
	}

	switch e.Type {
	case EventPhaseFailed, EventRunAborted:
		o.log.Error(e.Err, e.Message, kv...)
	case EventReadinessWaiting:
		if e.Err != nil {
			kv = append(kv, "probeError", e.Err.Error())
		}
		o.log.V(1).Info(e.Message, kv...)
	case EventPhaseRetrying:
		if e.Err != nil {
			kv = append(kv, "error", e.Err.Error())
		}
		o.log.Info(e.Message, kv...)
	default:
		o.log.Info(e.Message, kv...)
	}
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// Event implements Observer.
func (m MultiObserver) Event(e Event) {
	for _, o := range m {
		if o != nil {
			o.Event(e)
		}
	}
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Event implements Observer.
func (f ObserverFunc) Event(e Event) {
	f(e)
}
