package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nebulacms/nebula/internal/config"
	"github.com/nebulacms/nebula/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Long: `Applies all pending schema migrations to the configured PostgreSQL
database. Safe to run repeatedly; an up-to-date schema is not an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		if err := database.Migrate(cfg.PostgresConnectionString()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
