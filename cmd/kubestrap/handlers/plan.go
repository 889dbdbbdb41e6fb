package handlers

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/state"
)

// PlanStep is one line of the apply plan.
type PlanStep struct {
	Phase       string
	Description string
	Run         bool
}

// Plan prints the phases in execution order and whether the next apply
// would run or skip each.
func Plan(ctx context.Context, configPath string) ([]PlanStep, error) {
	s, err := openSession(ctx, configPath, logr.Discard())
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.close() }()

	ordered, err := orderedPhases(s.graph)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	steps := make([]PlanStep, 0, len(ordered))
	for i, p := range ordered {
		step := PlanStep{
			Phase:       p.ID,
			Description: p.Description,
			Run:         records[p.ID].Status != state.StatusSucceeded,
		}
		steps = append(steps, step)

		action := "run "
		if !step.Run {
			action = "skip"
		}
		_, _ = fmt.Fprintf(stdout, "%d. [%s] %-20s %s\n", i+1, action, p.ID, p.Description)
	}
	return steps, nil
}
