package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration
	CacheSize       int
	// RateLimit caps mutating requests per client and minute; 0 disables it.
	RateLimit int

	// Logging
	LogLevel  string
	LogFormat string

	// Ledger
	Timezone            string
	BudgetAlerts        bool
	BirthdayReminders   bool
	MaintenanceInterval time.Duration
	SeedDemo            bool

	// Archive (optional, disabled when empty)
	ArchiveDBPath string

	// AMQP (optional, disabled when URL is empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror (optional, disabled when spreadsheet id is empty)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		CacheSize:       getEnvInt("CACHE_SIZE", 128),
		RateLimit:       getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		Timezone:            getEnv("TIMEZONE", "Asia/Tokyo"),
		BudgetAlerts:        getEnvBool("BUDGET_ALERTS", true),
		BirthdayReminders:   getEnvBool("BIRTHDAY_REMINDERS", true),
		MaintenanceInterval: getEnvDuration("MAINTENANCE_INTERVAL", time.Hour),
		SeedDemo:            getEnvBool("SEED_DEMO", false),

		ArchiveDBPath: getEnv("ARCHIVE_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "oshikakeibo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "notifications"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}

	return cfg
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !oneOf(strings.ToLower(c.LogLevel), "debug", "info", "warn", "warning", "error") {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	if !oneOf(strings.ToLower(c.LogFormat), "text", "json", "color") {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json color]", c.LogFormat))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.MaintenanceInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid maintenance interval %v: must be at least 1 second", c.MaintenanceInterval))
	} else if c.MaintenanceInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid maintenance interval %v: must be at most 24 hours", c.MaintenanceInterval))
	}

	if c.CacheSize < 1 || c.CacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be between 1 and 10000", c.CacheSize))
	}

	if c.RateLimit < 0 || c.RateLimit > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be between 0 and 10000", c.RateLimit))
	}

	if c.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	// Check if the archive directory exists or can be created
	if c.ArchiveDBPath != "" {
		dir := filepath.Dir(c.ArchiveDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create archive database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets mirror if enabled
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets mirror")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
