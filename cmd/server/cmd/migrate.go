package cmd

import (
	"fmt"
	"strconv"

	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	Long: `Manage the database schema.

Examples:
  # Apply every pending migration, including River's job tables
  server migrate up

  # Roll back the last two application migrations
  server migrate down 2

  # Show the applied version
  server migrate version`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		ctx, cancel := exitOnSignal()
		defer cancel()
		return migrateAll(ctx, cfg, config.NewLogger(cfg.Logging))
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down N",
	Short: "Roll back the last N migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := parseSteps(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if err := postgres.MigrateDown(cfg.Database.URL, cfg.Database.MigrationsPath, steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		version, dirty, err := postgres.MigrationVersion(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatSchemaVersion(version, dirty))
		if dirty {
			return fmt.Errorf("schema version %d is dirty; fix the failed migration and force the version", version)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func formatSchemaVersion(version uint, dirty bool) string {
	switch {
	case version == 0:
		return "schema: no migrations applied"
	case dirty:
		return fmt.Sprintf("schema: version %d (dirty)", version)
	default:
		return fmt.Sprintf("schema: version %d", version)
	}
}

func parseSteps(raw string) (int, error) {
	steps, err := strconv.Atoi(raw)
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", raw)
	}
	return steps, nil
}
