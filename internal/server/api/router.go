package api

import (
	"fmt"

	"contactbox/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = NewTemplateRenderer()

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(RequestLogger())
	if cfg.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes)))
	}

	// Pages
	e.GET("/", handler.HandleForm)
	e.GET("/thankyou", handler.HandleThankYou)
	e.POST("/submit", handler.HandleSubmit)

	// Exports
	e.GET("/download_csv", handler.HandleDownloadCSV)
	e.GET("/all_submissions", handler.HandleAllSubmissions)

	// Attachments
	e.GET("/uploads/:name", handler.HandleUpload)

	// Single submission
	e.GET("/api/submissions/:id", handler.HandleGetSubmission)
	e.GET("/api/submissions/:id/attachment", handler.HandleSubmissionAttachment)

	e.GET("/health", handler.HandleHealth)

	return e
}
