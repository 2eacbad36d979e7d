package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"contactbox/internal/server/api"
	"contactbox/internal/server/database"
	"contactbox/internal/server/service"
	"contactbox/internal/server/storage"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"database_url", redactURL(cfg.DatabaseURL),
		"upload_dir", cfg.UploadDir,
		"max_upload_bytes", cfg.MaxUploadBytes,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	slog.Info("database schema ready")

	// Initialize attachment storage
	files := storage.NewFileSystemStore(cfg.UploadDir)
	if err := files.EnsureDir(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("file storage initialized", "path", cfg.UploadDir)

	handler := api.NewHandler(
		service.NewRecorder(db, files),
		service.NewExporter(db),
		service.NewAttachmentService(db, files),
		db,
	)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited cleanly")
	return nil
}
