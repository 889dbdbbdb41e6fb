package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/kubestrap/internal/util/retry"
)

const (
	defaultSSHPort        = 22
	defaultSSHDialTimeout = 10 * time.Second
	defaultSSHMaxAttempts = 12
	defaultSSHRetryDelay  = 5 * time.Second
	defaultSSHMaxDelay    = 10 * time.Second
)

// SSHConfig holds SSH connection settings.
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	DialTimeout time.Duration

	// MaxAttempts is the number of connection attempts before giving up.
	MaxAttempts int

	// RetryDelay is the initial delay between connection attempts.
	RetryDelay time.Duration

	// HostKeyCallback verifies the server host key. If nil, host keys are
	// not verified.
	HostKeyCallback ssh.HostKeyCallback
}

// SSHRunner runs commands on a remote host. The connection is opened on
// first use and reused until Close.
type SSHRunner struct {
	config SSHConfig
	signer ssh.Signer

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHRunner validates cfg, applies defaults and parses the private key.
func NewSSHRunner(cfg SSHConfig) (*SSHRunner, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("ssh private key cannot be empty")
	}

	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultSSHDialTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultSSHMaxAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultSSHRetryDelay
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via known_hosts in config
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &SSHRunner{config: cfg, signer: signer}, nil
}

func (r *SSHRunner) addr() string {
	return net.JoinHostPort(r.config.Host, strconv.Itoa(r.config.Port))
}

// connection returns the shared client, dialing with retries when needed.
func (r *SSHRunner) connection(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}

	config := &ssh.ClientConfig{
		User:            r.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.signer)},
		HostKeyCallback: r.config.HostKeyCallback,
		Timeout:         r.config.DialTimeout,
	}

	var client *ssh.Client
	_, err := retry.Do(ctx, func(int) error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", r.addr(), config)
		return dialErr
	},
		retry.WithMaxAttempts(r.config.MaxAttempts),
		retry.WithInitialDelay(r.config.RetryDelay),
		retry.WithMaxDelay(defaultSSHMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", r.addr(), err)
	}

	r.client = client
	return client, nil
}

// Close closes the underlying connection, if any.
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// dropConnection discards a broken connection so the next call redials.
func (r *SSHRunner) dropConnection(c *ssh.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == c {
		_ = c.Close()
		r.client = nil
	}
}

// run executes command in a new session with optional stdin.
func (r *SSHRunner) run(ctx context.Context, command string, stdin []byte) (string, error) {
	client, err := r.connection(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		r.dropConnection(client)
		return "", fmt.Errorf("failed to create SSH session on %s: %w", r.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	var out syncBuffer
	session.Stdout = &out
	session.Stderr = &out
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		return out.String(), fmt.Errorf("command %q interrupted: %w", command, ctx.Err())
	case err = <-done:
	}
	if err == nil {
		return out.String(), nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return out.String(), &CommandError{
			Host:     r.config.Host,
			Command:  command,
			Output:   out.String(),
			ExitCode: exitErr.ExitStatus(),
			Err:      err,
		}
	}
	r.dropConnection(client)
	return out.String(), &CommandError{Host: r.config.Host, Command: command, Output: out.String(), ExitCode: -1, Err: err}
}

// syncBuffer collects stdout and stderr, which the session copies from
// separate goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run implements Runner.
func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	return r.run(ctx, command, nil)
}

// WriteFile implements Runner by streaming data to a remote temporary file
// that is then renamed over path.
func (r *SSHRunner) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if data == nil {
		data = []byte{}
	}
	if _, err := r.run(ctx, writeFileScript(path, mode), data); err != nil {
		return fmt.Errorf("failed to write %s on %s: %w", path, r.config.Host, err)
	}
	return nil
}

// ReadFile implements Runner.
func (r *SSHRunner) ReadFile(ctx context.Context, path string) ([]byte, error) {
	out, err := r.run(ctx, "cat "+Quote(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s on %s: %w", path, r.config.Host, err)
	}
	return []byte(out), nil
}

// FileExists implements Runner.
func (r *SSHRunner) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := r.run(ctx, "test -e "+Quote(path), nil)
	if err == nil {
		return true, nil
	}
	if ExitCode(err) == 1 {
		return false, nil
	}
	return false, err
}
