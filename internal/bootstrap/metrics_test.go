package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/kubestrap/internal/state"
)

func TestMetrics_RecordsRun(t *testing.T) {
	t.Parallel()
	c := newCalls()
	g, err := NewGraph(
		Phase{ID: "system-prep", Action: c.action("system-prep", 0)},
		Phase{ID: "container-runtime", Prerequisites: []string{"system-prep"}, Action: c.action("container-runtime", 1)},
		Phase{ID: "control-plane-init", Prerequisites: []string{"container-runtime"}, Action: c.action("control-plane-init", 0), Readiness: neverReady(2)},
	)
	require.NoError(t, err)

	store := state.NewMemoryStore()
	store.Put(state.Record{Phase: "system-prep", Status: state.StatusSucceeded})

	m := NewMetrics()
	_, err = New(g, store, WithObserver(m), WithRetryPolicy(fastRetry(3))).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseAttempts.WithLabelValues("container-runtime", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseAttempts.WithLabelValues("container-runtime", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseAttempts.WithLabelValues("control-plane-init", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.probeAttempts.WithLabelValues("control-plane-init")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseStatus.WithLabelValues("system-prep", "Succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseStatus.WithLabelValues("control-plane-init", "Failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.phaseStatus.WithLabelValues("control-plane-init", "Running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runSuccess))
	assert.Equal(t, 2, testutil.CollectAndCount(m.phaseDuration))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.Event(Event{Type: EventPhaseStarted, Phase: "cni-install"})
	m.Event(Event{Type: EventPhaseCompleted, Phase: "cni-install"})
	m.Event(Event{Type: EventRunCompleted})

	path := filepath.Join(t.TempDir(), "textfile", "kubestrap.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `kubestrap_phase_attempts_total{phase="cni-install",result="success"} 1`)
	assert.Contains(t, out, "kubestrap_run_success 1")
	assert.Contains(t, out, "# TYPE kubestrap_phase_duration_seconds histogram")
}
