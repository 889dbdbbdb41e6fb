package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "state")
	s, err := NewFileStore(dir, WithRunID("run-1"), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return s, dir
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	t.Parallel()
	_, err := NewFileStore("  ")
	assert.Error(t, err)
}

func TestFileStore_LoadEmpty(t *testing.T) {
	t.Parallel()
	s, _ := newTestFileStore(t)

	recs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileStore_StartAndResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestFileStore(t)

	require.NoError(t, s.RecordStart(ctx, "system-prep"))
	require.NoError(t, s.RecordResult(ctx, "system-prep", Result{Status: StatusFailed, Err: errors.New("swapoff: exit 1")}))
	require.NoError(t, s.RecordStart(ctx, "system-prep"))
	require.NoError(t, s.RecordResult(ctx, "system-prep", Result{Status: StatusSucceeded}))

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, recs, "system-prep")

	rec := recs["system-prep"]
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Empty(t, rec.LastError)
	assert.Equal(t, "run-1", rec.RunID)
	assert.True(t, rec.UpdatedAt.Equal(fixedNow))

	// Records are plain YAML files named after the phase.
	data, err := os.ReadFile(filepath.Join(dir, "system-prep.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "status: Succeeded")
}

func TestFileStore_FailedRecordKeepsError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestFileStore(t)

	require.NoError(t, s.RecordStart(ctx, "cni-install"))
	require.NoError(t, s.RecordResult(ctx, "cni-install", Result{Status: StatusFailed, Err: errors.New("timed out")}))

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, recs["cni-install"].Status)
	assert.Equal(t, "timed out", recs["cni-install"].LastError)
}

func TestFileStore_IgnoresTempFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestFileStore(t)
	require.NoError(t, os.MkdirAll(dir, 0o750))

	// A write interrupted before the rename leaves only a hidden temp file.
	partial := "phase: control-plane-init\nstatus: Succ"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".control-plane-init.yaml.tmp-123"), []byte(partial), 0o600))

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, recs, "control-plane-init")
}

func TestFileStore_CorruptRecordNeverSucceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestFileStore(t)
	require.NoError(t, os.MkdirAll(dir, 0o750))

	var corrupt []string
	s.OnCorrupt = func(path string, _ error) { corrupt = append(corrupt, filepath.Base(path)) }

	cases := map[string]string{
		"truncated.yaml":  "phase: truncated\nstatus: Succeeded\nupdatedAt: 2026-",
		"mismatch.yaml":   "phase: other\nstatus: Succeeded\nupdatedAt: 2026-10-18T12:00:00Z\n",
		"badstatus.yaml":  "phase: badstatus\nstatus: Done\nupdatedAt: 2026-10-18T12:00:00Z\n",
		"notime.yaml":     "phase: notime\nstatus: Succeeded\n",
		"notyaml.yaml":    "{{{",
		"good-phase.yaml": "phase: good-phase\nstatus: Succeeded\nattempts: 1\nupdatedAt: 2026-10-18T12:00:00Z\n",
	}
	for name, content := range cases {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, StatusSucceeded, recs["good-phase"].Status)
	assert.Len(t, corrupt, 5)

	// A corrupt record restarts its attempt count instead of failing the run.
	require.NoError(t, s.RecordStart(ctx, "truncated"))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, recs["truncated"].Status)
	assert.Equal(t, 1, recs["truncated"].Attempts)
}

func TestFileStore_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestFileStore(t)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordStart(ctx, p))
		require.NoError(t, s.RecordResult(ctx, p, Result{Status: StatusSucceeded}))
	}

	require.NoError(t, s.Reset(ctx, "b"))
	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.NotContains(t, recs, "b")

	require.NoError(t, s.Reset(ctx))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Resetting a phase without a record is not an error.
	assert.NoError(t, s.Reset(ctx, "missing"))
}

func TestFileStore_InvalidPhaseID(t *testing.T) {
	t.Parallel()
	s, _ := newTestFileStore(t)

	for _, id := range []string{"", "../escape", "a/b", "..", ".", ".hidden"} {
		assert.Error(t, s.RecordStart(context.Background(), id), "id %q", id)
	}
}

func TestFileStore_DotPrefixedPhaseNeverWritten(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestFileStore(t)

	require.Error(t, s.RecordResult(ctx, ".cni-install", Result{Status: StatusSucceeded}))

	entries, err := os.ReadDir(dir)
	if err == nil {
		assert.Empty(t, entries)
	}
	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileStore_Unavailable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission checks are not enforced for this user")
	}
	t.Parallel()
	ctx := context.Background()

	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0o500))
	t.Cleanup(func() { _ = os.Chmod(parent, 0o700) })

	s, err := NewFileStore(filepath.Join(parent, "state"))
	require.NoError(t, err)

	err = s.RecordStart(ctx, "system-prep")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.Equal(t, "Pending", Status("").String())
}
