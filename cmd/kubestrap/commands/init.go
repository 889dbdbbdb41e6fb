package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/kubestrap/cmd/kubestrap/handlers"
)

// Init returns the command that writes a config file interactively.
func Init() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), output, force)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: kubestrap.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
