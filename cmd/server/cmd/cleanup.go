package cmd

import (
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/BreederHQ/server/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired webhook receipts and idempotency keys",
	Long: `Delete bookkeeping rows past their retention window.

The running server prunes these daily. Use this command after a long outage
or to reclaim space immediately.

Examples:
  # Default retention (30 days of webhook receipts, 24 hours of idempotency keys)
  server cleanup

  # Keep only a week of webhook receipts
  server cleanup --webhook-retention 168h`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupWebhookRetention     time.Duration
	cleanupIdempotencyRetention time.Duration
)

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupWebhookRetention, "webhook-retention", 30*24*time.Hour, "keep webhook receipts this long")
	cleanupCmd.Flags().DurationVar(&cleanupIdempotencyRetention, "idempotency-retention", 24*time.Hour, "keep idempotency keys this long")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupWebhookRetention <= 0 || cleanupIdempotencyRetention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := exitOnSignal()
	defer cancel()

	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	store, err := postgres.NewStore(pool)
	if err != nil {
		return err
	}

	now := time.Now()
	webhooks, err := store.WebhookEvents().DeleteOlderThan(ctx, now.Add(-cleanupWebhookRetention))
	if err != nil {
		return fmt.Errorf("prune webhook events: %w", err)
	}
	keys, err := store.IdempotencyKeys().DeleteOlderThan(ctx, now.Add(-cleanupIdempotencyRetention))
	if err != nil {
		return fmt.Errorf("prune idempotency keys: %w", err)
	}
	metrics.CleanupDeleted.WithLabelValues("webhook_events").Add(float64(webhooks))
	metrics.CleanupDeleted.WithLabelValues("idempotency_keys").Add(float64(keys))

	logger.Info().Int64("webhook_events", webhooks).Int64("idempotency_keys", keys).Msg("cleanup complete")
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d webhook event(s), %d idempotency key(s)\n", webhooks, keys)
	return nil
}
