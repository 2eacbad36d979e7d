package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"

	"contactbox/internal/server/database"
	"contactbox/internal/server/service"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every submission as CSV or JSON",
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

		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOutput, err)
			}
			defer f.Close()
			out = f
		}

		return writeExport(ctx, service.NewExporter(db), exportFormat, out)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file, - for stdout")
}

func writeExport(ctx context.Context, exp *service.Exporter, format string, w io.Writer) error {
	switch format {
	case "csv":
		return exp.WriteCSV(ctx, w)
	case "json":
		views, err := exp.ExportJSON(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	default:
		return fmt.Errorf("unknown export format %q (want csv or json)", format)
	}
}

// redactURL hides the password of a database URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
