package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/kubestrap/cmd/kubestrap/handlers"
)

// Plan returns the command that lists which phases the next apply runs.
func Plan() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the phases the next apply would run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := handlers.Plan(cmd.Context(), configPath)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}
