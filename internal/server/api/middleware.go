package api

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an echo middleware that logs requests using slog.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let echo write the error response so the logged status is final.
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			}
			slog.Log(req.Context(), level, "request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
			)

			return nil
		}
	}
}
