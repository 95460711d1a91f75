package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ABHIRAMSHIBU/internetradio/internal/database"
	"github.com/ABHIRAMSHIBU/internetradio/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the session history database schema",
	Long: `Inspect or change the schema of the session history database.

serve applies pending migrations on startup; these commands are for
inspection and rollback.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(m *migrations.Migrator) error {
			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeMigrationStatus(cmd.OutOrStdout(), statuses)
		})
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(m *migrations.Migrator) error {
			return m.Up(cmd.Context())
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(m *migrations.Migrator) error {
			return m.Down(cmd.Context())
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrator(cmd *cobra.Command, fn func(*migrations.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("database.enabled is false")
	}

	db, err := database.New(cfg.Database, slog.Default(), nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	return fn(db.SchemaMigrator())
}

func writeMigrationStatus(w io.Writer, statuses []migrations.MigrationStatus) error {
	out, err := yaml.Marshal(map[string]any{"migrations": statuses})
	if err != nil {
		return fmt.Errorf("marshaling migration status: %w", err)
	}
	_, err = w.Write(out)
	return err
}
