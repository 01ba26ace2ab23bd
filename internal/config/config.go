// Package config holds process configuration read from the environment.
// Command-line flags override these values; see internal/cli.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/coordsys/internal/clock"
)

// Config is the environment-level configuration.
type Config struct {
	DBPath           string        `env:"COORDSYS_DB"                 envDefault:"coordsys.db"`
	PollInterval     time.Duration `env:"COORDSYS_POLL_INTERVAL"      envDefault:"16ms"`
	ValidityMarginMS float64       `env:"COORDSYS_VALIDITY_MARGIN_MS" envDefault:"5"`
	LogLevel         slog.Level    `env:"COORDSYS_LOG_LEVEL"          envDefault:"info"`
	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr string `env:"COORDSYS_METRICS_ADDR"`
}

// ParseEnv loads configuration from the process environment.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseMap loads configuration from vars instead of the process
// environment. Unset variables take their defaults.
func ParseMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the tracking loops cannot run with.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("COORDSYS_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.ValidityMarginMS < 0 {
		return fmt.Errorf("COORDSYS_VALIDITY_MARGIN_MS must be >= 0, got %g", c.ValidityMarginMS)
	}
	return nil
}

// Margin returns the validity margin as clock milliseconds.
func (c Config) Margin() clock.Millis {
	return clock.Millis(c.ValidityMarginMS)
}

// NewLogger builds the text logger used by the CLI. verbose forces Debug
// regardless of the configured level.
func (c Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := c.LogLevel
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
