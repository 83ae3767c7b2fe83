// Package main implements orchctl, a CLI for running pipelines against an
// orchestratord HTTP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are shared by every subcommand.
type options struct {
	serverURL string
	asJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "orchctl",
		Short: "CLI for orchestratord",
		Long: `orchctl is a command-line interface for the orchestratord HTTP server.
It submits instructions or explicit plans, lists the registered tasks and
checks server health.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:8000", "orchestratord server URL")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON responses")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newTasksCmd(opts))
	root.AddCommand(newHealthCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}
