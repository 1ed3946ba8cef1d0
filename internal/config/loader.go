package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the audit service.
type Config struct {
	HTTPPort        int
	SQLiteDSN       string
	SessionTTL      time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level

	// BootstrapAdminEmail and BootstrapAdminPassword seed a first admin
	// account on an empty database. Both are optional; seeding only
	// happens when both are set.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load parses configuration values from the current process environment. A
// .env file in the working directory is merged in first when present;
// variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:        8080,
		SQLiteDSN:       "facility-audit.db",
		SessionTTL:      24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("AUDIT_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "AUDIT_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("AUDIT_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if ttlValue := strings.TrimSpace(os.Getenv("AUDIT_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "AUDIT_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("AUDIT_SHUTDOWN_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "AUDIT_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if levelValue := strings.TrimSpace(os.Getenv("AUDIT_LOG_LEVEL")); levelValue != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "AUDIT_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	cfg.BootstrapAdminEmail = strings.TrimSpace(os.Getenv("AUDIT_BOOTSTRAP_ADMIN_EMAIL"))
	cfg.BootstrapAdminPassword = os.Getenv("AUDIT_BOOTSTRAP_ADMIN_PASSWORD")
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		invalid = append(invalid, "AUDIT_BOOTSTRAP_ADMIN_EMAIL/AUDIT_BOOTSTRAP_ADMIN_PASSWORD")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
