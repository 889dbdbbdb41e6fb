package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/kubestrap/cmd/kubestrap/handlers"
)

// Reset returns the command that forgets recorded phase outcomes.
//
// Optional flags:
//
//	--config, -c: Path to configuration file (default: kubestrap.yaml)
//	--phase: Phase to reset, repeatable (default: all phases)
func Reset() *cobra.Command {
	var configPath string
	var phaseIDs []string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget recorded phase outcomes so apply runs them again",
		Long: `Clear stored phase records. The node itself is not changed.

Examples:
  # Re-run the CNI install on the next apply
  kubestrap reset --phase cni-install

  # Start over
  kubestrap reset`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Reset(cmd.Context(), configPath, phaseIDs)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringSliceVar(&phaseIDs, "phase", nil, "Phase to reset (repeatable, default: all)")

	return cmd
}
