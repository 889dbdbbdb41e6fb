package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/kubestrap/cmd/kubestrap/handlers"
)

// Apply returns the command for bootstrapping the node.
//
// Optional flags:
//
//	--config, -c: Path to configuration file (default: kubestrap.yaml)
//	--tui: Show the interactive dashboard when attached to a terminal
//	--dry-run: Print the phases that would run without executing them
//	--log-dev: Human-readable debug logging
func Apply() *cobra.Command {
	var opts handlers.ApplyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Bootstrap the node, resuming where the last run stopped",
		Long: `Bring the configured node to a running single-node cluster.

Phases run in order: system-prep, container-runtime, control-plane-init,
cni-install, monitoring-agents. Each phase's outcome is recorded in the
state backend; phases that already succeeded are skipped, so a failed run
is resumed by running apply again.

Examples:
  # Bootstrap using kubestrap.yaml in the current directory
  kubestrap apply

  # Show what would run
  kubestrap apply --dry-run

  # Follow progress in the dashboard
  kubestrap apply --tui`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Show the interactive dashboard")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the phases that would run without executing them")
	cmd.Flags().BoolVar(&opts.LogDev, "log-dev", false, "Human-readable debug logging")

	return cmd
}
