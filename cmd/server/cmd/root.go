package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
)

// newRootCmd assembles the command tree. Subcommands are package-level so
// their flag variables can be read by the run functions; they are moved
// under the new root if an earlier tree owned them.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "server",
		Short: "BreederHQ server - breeding program management backend",
		Long: `BreederHQ server is the multi-tenant backend for breeding programs.

It serves animals and pedigrees, breeding plans and litters, live draft
boards for allocating offspring to waitlisted buyers, invoices with Stripe
payments, generated documents, and per-tenant inbound email.

Running the binary without a subcommand starts the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file; environment variables override it")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default info)")
	flags.StringVar(&logFormat, "log-format", "", "log format: json or console (default json)")

	for _, sub := range []*cobra.Command{serveCmd, migrateCmd, sweepDraftsCmd, cleanupCmd, healthcheckCmd, versionCmd} {
		if sub.HasParent() {
			sub.Parent().RemoveCommand(sub)
		}
		root.AddCommand(sub)
	}
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
