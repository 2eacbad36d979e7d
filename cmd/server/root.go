package main

import (
	"log/slog"
	"os"

	"contactbox/internal/server/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "contactbox",
	Short:         "Contact form service: form intake, attachment storage, JSON and CSV exports",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(exportCmd)
}

// loadConfig reads the configuration and installs the JSON slog logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	return cfg, nil
}
