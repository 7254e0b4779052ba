package cmd

import (
	"fmt"

	"github.com/BreederHQ/server/internal/config"
	"github.com/spf13/cobra"
)

var sweepLimit int

var sweepDraftsCmd = &cobra.Command{
	Use:   "sweep-drafts",
	Short: "Expire draft picks whose clock has run out",
	Long: `Expire every on-the-clock pick past its deadline and advance the boards.

The running server does this on a schedule; this command is for recovering
after downtime or for running the sweep from an external scheduler.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger := config.NewLogger(cfg.Logging)

		ctx, cancel := exitOnSignal()
		defer cancel()

		a, err := newApp(ctx, cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		expired, err := a.drafts.Sweep(ctx, sweepLimit)
		if err != nil {
			return fmt.Errorf("sweep drafts: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d pick(s)\n", expired)
		return nil
	},
}

func init() {
	sweepDraftsCmd.Flags().IntVar(&sweepLimit, "limit", 500, "maximum picks to expire in one run")
}
