// Package main is the entry point for the kubestrap CLI.
//
// kubestrap turns a freshly provisioned Linux host into a single-node
// Kubernetes cluster: it prepares the kernel, configures containerd, runs
// kubeadm, installs Calico and starts the monitoring agents. Progress is
// recorded after every phase so an interrupted run resumes where it stopped.
//
// For detailed usage information, run:
//
//	kubestrap --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/kubestrap/cmd/kubestrap/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	commands.SetVersionInfo(version, commit, date)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
