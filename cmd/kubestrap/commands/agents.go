package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/kubestrap/cmd/kubestrap/handlers"
)

// Agents returns the command that controls the monitoring agents.
//
// Optional flags:
//
//	--config, -c: Path to configuration file (default: kubestrap.yaml)
func Agents() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:       "agents {start|stop|status|restart} [name...]",
		Short:     "Start, stop, restart or inspect the monitoring agents",
		ValidArgs: handlers.AgentActions,
		Args:      cobra.MinimumNArgs(1),
		Long: `Run a systemd action against node_exporter and otelcol.

Without names the action applies to every enabled agent.

Examples:
  # Show agent states
  kubestrap agents status

  # Restart the collector after changing its endpoint
  kubestrap agents restart otelcol`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Agents(cmd.Context(), configPath, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
