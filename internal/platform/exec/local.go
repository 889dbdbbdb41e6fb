package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"time"
)

// LocalRunner runs commands on the local host.
type LocalRunner struct {
	// Shell defaults to /bin/sh.
	Shell string

	// Env is appended to the current process environment.
	Env []string
}

// NewLocalRunner returns a runner for the local host.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{Shell: "/bin/sh"}
}

// Run implements Runner.
func (r *LocalRunner) Run(ctx context.Context, command string) (string, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := osexec.CommandContext(ctx, shell, "-c", command) // #nosec G204
	// Children that inherit stdout must not hold Run open after cancellation.
	cmd.WaitDelay = time.Second
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return string(out), fmt.Errorf("command %q interrupted: %w", command, ctxErr)
	}

	code := -1
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return string(out), &CommandError{
		Host:     "localhost",
		Command:  command,
		Output:   string(out),
		ExitCode: code,
		Err:      err,
	}
}

// WriteFile implements Runner. The file is written to a temporary name,
// synced and renamed into place.
func (r *LocalRunner) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadFile implements Runner.
func (r *LocalRunner) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// FileExists implements Runner.
func (r *LocalRunner) FileExists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
