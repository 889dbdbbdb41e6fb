package handlers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/monitoring"
	"github.com/imamik/kubestrap/internal/phases"
)

// AgentActions lists the actions Agents accepts.
var AgentActions = []string{"start", "stop", "restart", "status"}

// Agents runs a systemd action against the configured monitoring agents.
// No names means every enabled agent.
func Agents(ctx context.Context, configPath, action string, names []string) error {
	if !slices.Contains(AgentActions, action) {
		return fmt.Errorf("unknown action %q (want one of: %s)", action, strings.Join(AgentActions, ", "))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	node, closeNode, err := newNodeRunner(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeNode() }()

	agents, err := selectAgents(phases.Agents(cfg, node, logr.Discard()), names)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		_, _ = fmt.Fprintln(stdout, "No monitoring agents enabled")
		return nil
	}

	for _, a := range agents {
		if action == "status" {
			st, err := a.Status(ctx)
			if err != nil {
				return fmt.Errorf("status %s: %w", a.Name(), err)
			}
			_, _ = fmt.Fprintf(stdout, "%-15s %s\n", a.Name(), st)
			continue
		}
		if err := agentAction(ctx, a, action); err != nil {
			return fmt.Errorf("%s %s: %w", action, a.Name(), err)
		}
		_, _ = fmt.Fprintf(stdout, "%s %s\n", pastTense(action), a.Name())
	}
	return nil
}

func agentAction(ctx context.Context, a monitoring.Agent, action string) error {
	switch action {
	case "start":
		return a.Start(ctx)
	case "stop":
		return a.Stop(ctx)
	default:
		return a.Restart(ctx)
	}
}

func selectAgents(all []monitoring.Agent, names []string) ([]monitoring.Agent, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]monitoring.Agent, len(all))
	for _, a := range all {
		byName[a.Name()] = a
	}
	var picked []monitoring.Agent
	var unknown []string
	for _, n := range names {
		a, ok := byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		picked = append(picked, a)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown or disabled agent(s): %s", strings.Join(unknown, ", "))
	}
	return picked, nil
}

func pastTense(action string) string {
	switch action {
	case "start":
		return "Started"
	case "stop":
		return "Stopped"
	default:
		return "Restarted"
	}
}
