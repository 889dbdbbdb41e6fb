package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/imamik/kubestrap/internal/bootstrap"
	"github.com/imamik/kubestrap/internal/state"
	"github.com/imamik/kubestrap/internal/ui/tui"
)

// logFile receives logs while the TUI owns the terminal.
const logFile = "kubestrap.log"

// ApplyOptions holds the apply command flags.
type ApplyOptions struct {
	ConfigPath string
	TUI        bool
	DryRun     bool
	LogDev     bool
}

// runTUI runs a bootstrap behind the dashboard; replaced in tests.
var runTUI = tui.RunApplyTUI

// Apply bootstraps the configured node, resuming after the last phase that
// succeeded in an earlier run.
//
// The flow is:
//  1. Load the config, connect to the node and open the state backend
//  2. Build the phase graph
//  3. Run the orchestrator, printing logs or driving the TUI
//  4. Export run metrics to the node_exporter textfile directory
func Apply(ctx context.Context, opts ApplyOptions) error {
	useTUI := opts.TUI && !opts.DryRun && isInteractiveTTY()

	logOut := io.Writer(os.Stderr)
	if useTUI {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	log := NewLogger(logOut, opts.LogDev)

	s, err := openSession(ctx, opts.ConfigPath, log)
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()

	log.Info("Applying configuration", "cluster", s.cfg.ClusterName, "node", s.cfg.Node.Name, "dryRun", opts.DryRun)

	metrics := bootstrap.NewMetrics()
	orchestratorOpts := []bootstrap.Option{
		bootstrap.WithRetryPolicy(bootstrap.RetryPolicy{
			MaxAttempts:  s.timeouts.RetryMaxAttempts,
			InitialDelay: s.timeouts.RetryInitialDelay,
			MaxDelay:     s.timeouts.RetryMaxDelay,
			Multiplier:   2,
		}),
	}
	if opts.DryRun {
		orchestratorOpts = append(orchestratorOpts,
			bootstrap.WithExecutor(bootstrap.DryRunExecutor{
				Visit: func(p bootstrap.Phase) {
					_, _ = fmt.Fprintf(stdout, "would run %s: %s\n", p.ID, p.Description)
				},
			}),
			bootstrap.WithoutReadiness(),
		)
	}

	var report *bootstrap.Report
	run := func(ctx context.Context, obs bootstrap.Observer) error {
		observers := bootstrap.MultiObserver{bootstrap.NewLogObserver(log)}
		if obs != nil {
			observers = append(observers, obs)
		}
		if !opts.DryRun {
			observers = append(observers, metrics)
		}
		store, err := runStore(ctx, s, opts.DryRun)
		if err != nil {
			return err
		}
		o := bootstrap.New(s.graph, store, append(orchestratorOpts, bootstrap.WithObserver(observers))...)
		var runErr error
		report, runErr = o.Run(ctx)
		return runErr
	}

	if useTUI {
		ordered, err := orderedPhases(s.graph)
		if err != nil {
			return err
		}
		err = runTUI(ctx, run, tui.NewApplyModel(s.cfg.ClusterName, s.cfg.Node.Name, ordered))
		exportMetrics(context.WithoutCancel(ctx), s, metrics, opts.DryRun)
		return err
	}

	runErr := run(ctx, nil)
	exportMetrics(context.WithoutCancel(ctx), s, metrics, opts.DryRun)
	printReport(stdout, report)
	if runErr != nil {
		return runErr
	}
	if !opts.DryRun {
		_, _ = fmt.Fprintf(stdout, "\nCluster %s is ready. Kubeconfig: %s\n", s.cfg.ClusterName, s.cfg.Kubernetes.KubeconfigPath)
	}
	return nil
}

// runStore returns the store the orchestrator writes to. Dry runs see the
// persisted records through an in-memory copy so nothing is written back.
func runStore(ctx context.Context, s *session, dryRun bool) (state.Store, error) {
	if !dryRun {
		return s.store, nil
	}
	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	scratch := state.NewMemoryStore()
	for _, rec := range records {
		scratch.Put(rec)
	}
	return scratch, nil
}

// exportMetrics writes the run metrics for the node_exporter textfile
// collector. Failures are logged only.
func exportMetrics(ctx context.Context, s *session, m *bootstrap.Metrics, dryRun bool) {
	path := metricsTextfile(s.cfg)
	if dryRun || path == "" {
		return
	}
	if err := writeMetrics(ctx, s, m, path); err != nil {
		s.log.Error(err, "Failed to export metrics", "path", path)
	}
}

func writeMetrics(ctx context.Context, s *session, m *bootstrap.Metrics, path string) error {
	if s.node == localRunner {
		return m.WriteTextfile(path)
	}

	tmp, err := os.MkdirTemp("", "kubestrap-metrics")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	local := filepath.Join(tmp, filepath.Base(path))
	if err := m.WriteTextfile(local); err != nil {
		return err
	}
	data, err := os.ReadFile(local) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := s.node.Run(ctx, "mkdir -p "+filepath.Dir(path)); err != nil {
		return err
	}
	return s.node.WriteFile(ctx, path, data, 0o644)
}

// printReport prints a one-line summary per phase.
func printReport(w io.Writer, report *bootstrap.Report) {
	if report == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "\nRun %s in %s\n", report.State, report.Duration.Round(time.Millisecond))
	for _, p := range report.Phases {
		line := fmt.Sprintf("  %-20s %-10s attempts=%d", p.ID, p.Status, p.Attempts)
		if p.Skipped {
			line = fmt.Sprintf("  %-20s %-10s", p.ID, "skipped")
		}
		if p.Err != nil {
			line += "  " + p.Err.Error()
		}
		_, _ = fmt.Fprintln(w, line)
	}
	var abort *bootstrap.AbortError
	if errors.As(report.Err, &abort) {
		_, _ = fmt.Fprintf(w, "\nAborted in %s after %d attempt(s). Fix the cause and re-run 'kubestrap apply' to resume.\n", abort.Phase, abort.Attempts)
	}
}
