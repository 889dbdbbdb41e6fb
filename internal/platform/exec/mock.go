package exec

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MockRunner is an in-memory Runner for tests. Commands are matched against
// registered handlers in registration order by substring; unmatched commands
// succeed with empty output. Files live in the Files map.
type MockRunner struct {
	mu       sync.Mutex
	handlers []mockHandler

	// Commands records every command passed to Run, in order.
	Commands []string

	// Files holds written files by path.
	Files map[string][]byte

	// Modes holds the mode of each written file.
	Modes map[string]os.FileMode
}

type mockHandler struct {
	match string
	fn    func(command string) (string, error)
}

// NewMockRunner returns an empty MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Files: make(map[string][]byte),
		Modes: make(map[string]os.FileMode),
	}
}

// On registers a fixed response for commands containing match.
func (m *MockRunner) On(match, output string, err error) *MockRunner {
	return m.OnFunc(match, func(string) (string, error) { return output, err })
}

// OnFunc registers a handler for commands containing match.
func (m *MockRunner) OnFunc(match string, fn func(command string) (string, error)) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, mockHandler{match: match, fn: fn})
	return m
}

// Fail returns a *CommandError for commands containing match.
func (m *MockRunner) Fail(match string, exitCode int, output string) *MockRunner {
	return m.OnFunc(match, func(command string) (string, error) {
		return output, &CommandError{Host: "mock", Command: command, Output: output, ExitCode: exitCode}
	})
}

// Run implements Runner.
func (m *MockRunner) Run(_ context.Context, command string) (string, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, command)
	handlers := append([]mockHandler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		if strings.Contains(command, h.match) {
			return h.fn(command)
		}
	}
	return "", nil
}

// WriteFile implements Runner.
func (m *MockRunner) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[path] = append([]byte(nil), data...)
	m.Modes[path] = mode
	return nil
}

// ReadFile implements Runner.
func (m *MockRunner) ReadFile(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[path]
	if !ok {
		return nil, fmt.Errorf("failed to read %s: %w", path, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// FileExists implements Runner.
func (m *MockRunner) FileExists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Files[path]
	return ok, nil
}

// Ran reports whether any recorded command contains substr.
func (m *MockRunner) Ran(substr string) bool {
	return m.Count(substr) > 0
}

// Count returns how many recorded commands contain substr.
func (m *MockRunner) Count(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}
