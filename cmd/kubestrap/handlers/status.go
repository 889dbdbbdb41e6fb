package handlers

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/ui/tui"
)

// Status prints the stored state of every phase.
func Status(ctx context.Context, configPath string) error {
	s, err := openSession(ctx, configPath, logr.Discard())
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()

	ordered, err := orderedPhases(s.graph)
	if err != nil {
		return err
	}
	records, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	_, _ = fmt.Fprintln(stdout, tui.RenderStatus(s.cfg.ClusterName, s.cfg.Node.Name, ordered, records))
	return nil
}
