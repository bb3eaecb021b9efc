// Package config loads process configuration from ROOMMATES_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures environment driven configuration for the binaries.
type Config struct {
	// Addr is the listen address of the RPC server.
	Addr string `env:"ADDR" envDefault:":8080"`

	// DBPath is the SQLite database file.
	DBPath string `env:"DB_PATH" envDefault:"./data/roommates.db"`

	// JWTSecret signs session tokens. Required by the server.
	JWTSecret string `env:"JWT_SECRET"`

	// TokenTTL is how long issued tokens remain valid.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// StoreTimeout bounds every store round trip made by a service.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// TimeZone is the IANA zone weeks are anchored in. Empty means the
	// process local zone.
	TimeZone string `env:"TIME_ZONE"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is "text" (colored) or "json".
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `env:"OTEL_ENDPOINT"`

	// MetricsPath is where Prometheus metrics are served.
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load parses configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ROOMMATES_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("ROOMMATES_TOKEN_TTL must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("ROOMMATES_STORE_TIMEOUT must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("ROOMMATES_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("ROOMMATES_TIME_ZONE: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RequireJWTSecret reports an error when the signing secret is missing.
func (c Config) RequireJWTSecret() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("ROOMMATES_JWT_SECRET is required")
	}
	return nil
}

// Location returns the configured time zone, or time.Local.
func (c Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
