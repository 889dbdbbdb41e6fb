package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/kubestrap/cmd/kubestrap/handlers"
)

// Doctor returns the command that checks the node for required tools.
func Doctor() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the node for the tools a bootstrap needs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Doctor(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
