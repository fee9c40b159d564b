// Package config loads process configuration from ETSSIM_* environment
// variables and an optional YAML file of session settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/omakhlouk/ets-simulation/internal/engine"
	"github.com/omakhlouk/ets-simulation/internal/persistence"
)

// Config holds everything cmd/etssim needs to start.
type Config struct {
	Port     int    `env:"ETSSIM_PORT" envDefault:"8080"`
	AdminKey string `env:"ETSSIM_ADMIN_KEY"`
	LogLevel string `env:"ETSSIM_LOG_LEVEL" envDefault:"info"`

	DBDialect string `env:"ETSSIM_DB_DIALECT" envDefault:"sqlite"`
	DBPath    string `env:"ETSSIM_DB_PATH" envDefault:"data/ets.db"`
	DBDSN     string `env:"ETSSIM_DB_DSN"`

	// Seed 0 picks a fresh seed at startup.
	Seed         int64  `env:"ETSSIM_SEED" envDefault:"0"`
	RandomOrgKey string `env:"ETSSIM_RANDOM_ORG_KEY"`

	SettingsFile  string        `env:"ETSSIM_SETTINGS_FILE"`
	PhaseDelay    time.Duration `env:"ETSSIM_PHASE_DELAY" envDefault:"3s"`
	TradeDelay    time.Duration `env:"ETSSIM_TRADE_DELAY" envDefault:"1s"`
	ClockInterval time.Duration `env:"ETSSIM_CLOCK_INTERVAL" envDefault:"1s"`

	// DemoSession starts a demo session seated with NPCs when no saved
	// state exists.
	DemoSession bool `env:"ETSSIM_DEMO_SESSION" envDefault:"false"`

	RateLimit float64 `env:"ETSSIM_RATE_LIMIT" envDefault:"10"` // player requests per second per IP
	RateBurst int     `env:"ETSSIM_RATE_BURST" envDefault:"20"`

	// Settings are the session defaults, overlaid by SettingsFile.
	Settings engine.Settings `env:"-"`
}

// Load reads the environment and the settings file, then validates.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Settings = engine.DefaultSettings()
	if cfg.SettingsFile != "" {
		data, err := os.ReadFile(cfg.SettingsFile)
		if err != nil {
			return Config{}, fmt.Errorf("read settings file: %w", err)
		}
		if cfg.Settings, err = OverlaySettings(cfg.Settings, data); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OverlaySettings decodes YAML onto base. Keys absent from the document keep
// their base value.
func OverlaySettings(base engine.Settings, data []byte) (engine.Settings, error) {
	s := base
	s.MarketEvents = append([]string(nil), base.MarketEvents...)
	if err := yaml.Unmarshal(data, &s); err != nil {
		return base, fmt.Errorf("decode settings yaml: %w", err)
	}
	return s, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch persistence.Dialect(c.DBDialect) {
	case persistence.SQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("sqlite requires ETSSIM_DB_PATH"))
		}
	case persistence.Postgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("postgres requires ETSSIM_DB_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db dialect %q", c.DBDialect))
	}
	if c.PhaseDelay < 0 || c.TradeDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.ClockInterval <= 0 {
		errs = append(errs, errors.New("clock interval must be positive"))
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		errs = append(errs, errors.New("rate limit and burst must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("settings: %w", err))
	}
	return errors.Join(errs...)
}

// DSN returns the connection string for the configured dialect.
func (c Config) DSN() string {
	if persistence.Dialect(c.DBDialect) == persistence.Postgres {
		return c.DBDSN
	}
	return c.DBPath
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", name, err)
	}
	return l, nil
}
