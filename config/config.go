// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the server binary needs.
type Config struct {
	Port        int    // LEDGER_PORT, default 8080
	DBPath      string // LEDGER_DB, default ledger.db; ":memory:" works
	Environment string // LEDGER_ENV: development | production
}

// Load reads the environment. A missing .env file is not an error; explicit
// environment variables always win because godotenv does not overwrite.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:        8080,
		DBPath:      "ledger.db",
		Environment: "development",
	}

	if v := os.Getenv("LEDGER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LEDGER_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("LEDGER_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LEDGER_ENV"); v != "" {
		cfg.Environment = v
	}

	return cfg, nil
}

// Production reports whether the server should use production logging and
// disable demo scenarios.
func (c *Config) Production() bool {
	return c.Environment == "production"
}
