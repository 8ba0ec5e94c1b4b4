package main

import (
	"context"

	"github.com/spf13/cobra"
)

// configPath is the one global flag both subcommands share, per spec.md
// §6's "discover shares only ConfigLoader with monitor."
var configPath string

const (
	attachmentsDir = "tmp/attachments"
	telegramLogDir = "tmp/telegramlog"
	rssLogDir      = "tmp/rsslog"
	metricsPath    = "tmp/metrics.json"
	sessionPath    = "tmp/session.bbolt"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Routes keyword-matched chat messages and RSS entries to webhook and chat destinations.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to the configuration document")
	root.AddCommand(newMonitorCmd(), newDiscoverCmd())
	return root
}

// run wires the root command's exit code to spec.md §6: 0 on a clean
// shutdown, non-zero on a startup validation failure or unrecoverable
// runtime fault.
func run() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}
