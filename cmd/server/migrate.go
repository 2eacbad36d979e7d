package main

import (
	"context"
	"fmt"
	"log/slog"

	"contactbox/internal/server/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the contacts table if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		slog.Info("database schema ready", "database_url", redactURL(cfg.DatabaseURL))
		return nil
	},
}
