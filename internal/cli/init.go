// Package cli provides common process initialization utilities for cmd/oshikakeibo.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"oshikakeibo/internal/config"
	applog "oshikakeibo/internal/log"
	"oshikakeibo/internal/storage"
)

// SetupLogger initializes structured logging from LOG_LEVEL and LOG_FORMAT.
// It runs before configuration is validated, so it reads the environment
// directly. Returns the configured logger and sets it as the default logger.
func SetupLogger() *applog.Logger {
	level := applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentApp,
		Handler:   applog.NewHandler(os.Stdout, os.Getenv("LOG_FORMAT"), level),
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitArchive opens the SQLite snapshot archive at dbPath.
// Returns nil when dbPath is empty, or exits the process on failure.
func InitArchive(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	if dbPath == "" {
		return nil
	}
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize archive", "error", err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("Archive ready", "path", dbPath)
	return repo
}
