// Package config loads Kestrel configuration from an optional YAML file and
// KESTREL_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FileEnv names the environment variable holding the optional YAML path.
const FileEnv = "KESTREL_CONFIG"

// Load builds the configuration for the selected tier. The tier profile
// supplies defaults; the YAML file and then the environment override them.
// Secrets are only read from the environment (yaml:"-" fields).
func Load() (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("KESTREL_TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path := os.Getenv(FileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Repository.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported repository driver: %q", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %q", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %q", cfg.EventBus.Type)
	}
	if cfg.Analysis.BaseURL == "" {
		return fmt.Errorf("analysis base url is required")
	}
	if cfg.Ingest.IDPrefix == "" {
		return fmt.Errorf("case id prefix is required")
	}
	if cfg.Ingest.IDBase < 0 {
		return fmt.Errorf("case id base must not be negative")
	}
	return nil
}

// LogLevel maps the logging settings to a slog level.
func LogLevel(cfg domain.LoggingConfig) slog.Level {
	if cfg.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(cfg.Level) {
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

// Usage returns the list of recognised environment variables.
func Usage() string {
	var cfg domain.Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
