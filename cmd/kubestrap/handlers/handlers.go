// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/imamik/kubestrap/internal/bootstrap"
	"github.com/imamik/kubestrap/internal/config"
	"github.com/imamik/kubestrap/internal/phases"
	"github.com/imamik/kubestrap/internal/platform/exec"
	"github.com/imamik/kubestrap/internal/platform/s3"
	"github.com/imamik/kubestrap/internal/state"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads and validates the config file.
	loadConfigFile = config.Load

	// loadTimeouts reads timeouts from the environment.
	loadTimeouts = config.LoadTimeouts

	// newNodeRunner returns the runner for the configured node and a closer.
	newNodeRunner = defaultNodeRunner

	// localRunner runs on the machine kubestrap runs on.
	localRunner exec.Runner = exec.NewLocalRunner()

	// newObjectClient creates the S3 client for the s3 state backend.
	newObjectClient = func(ctx context.Context, opts s3.Options) (state.ObjectClient, error) {
		return s3.NewClient(ctx, opts)
	}

	// buildGraph assembles the bootstrap phases.
	buildGraph = phases.Build

	// isInteractiveTTY reports whether stdout is a terminal.
	isInteractiveTTY = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

// loadConfig loads the config file. An empty path means kubestrap.yaml in the
// current directory.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no config file found at %s\nRun 'kubestrap init' to create one", configPath)
		}
		return nil, err
	}
	return cfg, nil
}

// NewLogger returns the CLI logger. Development mode logs human-readable
// console output at debug level.
func NewLogger(w io.Writer, dev bool) logr.Logger {
	return zap.New(zap.WriteTo(w), zap.UseDevMode(dev))
}

// defaultNodeRunner connects to the node over SSH when configured and runs
// locally otherwise.
func defaultNodeRunner(cfg *config.Config) (exec.Runner, func() error, error) {
	if cfg.Node.SSH == nil {
		return localRunner, func() error { return nil }, nil
	}

	sshCfg := cfg.Node.SSH
	key, err := os.ReadFile(sshCfg.PrivateKeyPath) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read SSH private key: %w", err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if sshCfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(sshCfg.KnownHostsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	runner, err := exec.NewSSHRunner(exec.SSHConfig{
		Host:            sshCfg.Host,
		Port:            sshCfg.Port,
		User:            sshCfg.User,
		PrivateKey:      key,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, nil, err
	}
	return runner, runner.Close, nil
}

// openStore opens the configured state backend.
func openStore(ctx context.Context, cfg *config.Config, log logr.Logger) (state.Store, error) {
	switch cfg.State.Backend {
	case config.StateBackendS3:
		s3Cfg := cfg.State.S3
		client, err := newObjectClient(ctx, s3.Options{
			Endpoint:  s3Cfg.Endpoint,
			Region:    s3Cfg.Region,
			AccessKey: s3Cfg.AccessKey,
			SecretKey: s3Cfg.SecretKey,
			PathStyle: s3Cfg.PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if ensurer, ok := client.(interface {
			EnsureBucket(ctx context.Context, bucket string) error
		}); ok {
			if err := ensurer.EnsureBucket(ctx, s3Cfg.Bucket); err != nil {
				return nil, fmt.Errorf("failed to ensure state bucket: %w", err)
			}
		}
		store, err := state.NewObjectStore(client, s3Cfg.Bucket, s3Cfg.Prefix)
		if err != nil {
			return nil, err
		}
		store.OnCorrupt = func(key string, err error) {
			log.Info("Ignoring unreadable state record", "key", key, "error", err.Error())
		}
		return store, nil
	default:
		store, err := state.NewFileStore(cfg.State.Dir)
		if err != nil {
			return nil, err
		}
		store.OnCorrupt = func(path string, err error) {
			log.Info("Ignoring unreadable state record", "path", path, "error", err.Error())
		}
		return store, nil
	}
}

// session bundles what every state-aware command needs.
type session struct {
	cfg      *config.Config
	timeouts *config.Timeouts
	node     exec.Runner
	store    state.Store
	graph    *bootstrap.Graph
	log      logr.Logger
	close    func() error
}

// openSession loads the config, connects to the node and state backend and
// builds the phase graph.
func openSession(ctx context.Context, configPath string, log logr.Logger) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	node, closeNode, err := newNodeRunner(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		_ = closeNode()
		return nil, err
	}

	timeouts := loadTimeouts()
	graph, err := buildGraph(cfg, timeouts, phases.Deps{
		Node:  node,
		Local: localRunner,
		Log:   log,
	})
	if err != nil {
		_ = closeNode()
		return nil, fmt.Errorf("failed to build phase graph: %w", err)
	}

	return &session{
		cfg:      cfg,
		timeouts: timeouts,
		node:     node,
		store:    store,
		graph:    graph,
		log:      log,
		close:    closeNode,
	}, nil
}

// orderedPhases returns the graph's phases in execution order.
func orderedPhases(g *bootstrap.Graph) ([]bootstrap.Phase, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]bootstrap.Phase, 0, len(order))
	for _, id := range order {
		p, _ := g.Phase(id)
		out = append(out, p)
	}
	return out, nil
}

// metricsTextfile returns where run metrics are exported, or "" when the
// node exporter is disabled.
func metricsTextfile(cfg *config.Config) string {
	ne := cfg.Monitoring.NodeExporter
	if !ne.Enabled || ne.TextfileDir == "" {
		return ""
	}
	return filepath.Join(ne.TextfileDir, "kubestrap.prom")
}
