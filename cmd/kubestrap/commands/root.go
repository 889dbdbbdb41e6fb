// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the kubestrap CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kubestrap",
		Short:         "Bootstrap a single-node Kubernetes cluster with kubeadm",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Core commands
	cmd.AddCommand(Init())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Plan())
	cmd.AddCommand(Status())
	cmd.AddCommand(Reset())
	cmd.AddCommand(Doctor())
	cmd.AddCommand(Agents())

	// Utility commands
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
