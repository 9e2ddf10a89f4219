// Package config loads runtime configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// DATABASE_URL empty means the in-memory ledger is used.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// REDIS_URL empty disables the account mirror storage.
	RedisURL string `envconfig:"REDIS_URL"`

	// TeamAuthority may create official full-position markets.
	TeamAuthority string `envconfig:"TEAM_AUTHORITY"`

	// ClearingRobot is the only caller allowed to force-close positions.
	ClearingRobot string `envconfig:"CLEARING_ROBOT"`

	// BinanceFeed switches price quotes from the in-process feed to
	// the Binance spot ticker. Development use only.
	BinanceFeed bool `envconfig:"BINANCE_FEED" default:"false"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads the .env file when present and parses the environment.
func Load() (*Config, error) {
	// Ignore a missing .env; production configures through the
	// environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("config: SHUTDOWN_TIMEOUT must be positive")
	}
	return &cfg, nil
}
