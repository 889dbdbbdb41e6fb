package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/kubestrap/internal/util/prerequisites"
)

// Doctor checks the node for the tools the phases need.
func Doctor(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	node, closeNode, err := newNodeRunner(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeNode() }()

	tools := prerequisites.DefaultTools()
	tools = append(tools, prerequisites.OptionalTools()...)
	tools = append(tools, prerequisites.MonitoringTools(
		cfg.Monitoring.NodeExporter.Enabled,
		cfg.Monitoring.Otelcol.Enabled,
	)...)

	results, err := prerequisites.Check(ctx, node, tools)
	if err != nil {
		return err
	}

	for _, r := range results.Results {
		switch {
		case r.Found:
			_, _ = fmt.Fprintf(stdout, "  [OK]   %-12s %s %s\n", r.Tool.Name, r.Path, r.Version)
		case r.Tool.Required:
			_, _ = fmt.Fprintf(stdout, "  [FAIL] %-12s %s\n", r.Tool.Name, r.Tool.InstallURL)
		default:
			_, _ = fmt.Fprintf(stdout, "  [--]   %-12s optional: %s\n", r.Tool.Name, r.Tool.Description)
		}
	}
	return results.Error()
}
