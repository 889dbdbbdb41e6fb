package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Runner executes shell commands and manages files on a node.
type Runner interface {
	// Run executes command with /bin/sh -c and returns its combined output.
	// A non-zero exit status is returned as a *CommandError.
	Run(ctx context.Context, command string) (string, error)

	// WriteFile replaces path with data, creating parent directories.
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error

	// ReadFile returns the contents of path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// FileExists reports whether path exists.
	FileExists(ctx context.Context, path string) (bool, error)
}

// CommandError is returned when a command exits with a non-zero status.
type CommandError struct {
	Host     string
	Command  string
	Output   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 512 {
		out = "..." + out[len(out)-512:]
	}
	msg := fmt.Sprintf("command %q failed on %s with exit code %d", e.Command, e.Host, e.ExitCode)
	if out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status carried by err, or -1 when err is not a
// *CommandError.
func ExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// Quote returns s as a single-quoted shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,@+%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Join quotes each argument and joins them into a command line.
func Join(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// writeFileScript returns a command that atomically installs stdin at path.
func writeFileScript(path string, mode os.FileMode) string {
	dir := path[:strings.LastIndex(path, "/")+1]
	if dir == "" {
		dir = "."
	}
	tmp := path + ".kubestrap-tmp"
	return fmt.Sprintf("mkdir -p %s && cat > %s && chmod %o %s && mv -f %s %s",
		Quote(dir), Quote(tmp), mode.Perm(), Quote(tmp), Quote(tmp), Quote(path))
}
