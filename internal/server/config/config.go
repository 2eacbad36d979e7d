package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                   string `yaml:"port"`
	DatabaseURL            string `yaml:"database_url"`
	UploadDir              string `yaml:"upload_dir"`
	MaxUploadBytes         int64  `yaml:"max_upload_bytes"`
	LogLevel               string `yaml:"log_level"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Port:                   "8080",
		DatabaseURL:            "contact.db",
		UploadDir:              "./uploads",
		MaxUploadBytes:         0,
		LogLevel:               "info",
		ShutdownTimeoutSeconds: 30,
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path, then environment variables. An empty path falls back to CONFIG_FILE.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeoutSeconds = getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", cfg.ShutdownTimeoutSeconds)

	return cfg, nil
}

// ShutdownTimeout is the grace period given to in-flight requests on shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
