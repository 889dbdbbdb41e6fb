package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// Reset clears stored records so the named phases run again on the next
// apply. No phases means all of them.
func Reset(ctx context.Context, configPath string, phaseIDs []string) error {
	s, err := openSession(ctx, configPath, logr.Discard())
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()

	var unknown []string
	for _, id := range phaseIDs {
		if _, ok := s.graph.Phase(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown phase(s): %s", strings.Join(unknown, ", "))
	}

	if err := s.store.Reset(ctx, phaseIDs...); err != nil {
		return fmt.Errorf("failed to reset state: %w", err)
	}

	if len(phaseIDs) == 0 {
		_, _ = fmt.Fprintln(stdout, "Reset all phases")
	} else {
		_, _ = fmt.Fprintf(stdout, "Reset %s\n", strings.Join(phaseIDs, ", "))
	}
	return nil
}
