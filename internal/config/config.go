// Package config loads the configuration of authgearctl from the
// environment and an optional .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ClientID string `env:"AUTHGEAR_CLIENT_ID"`
	Endpoint string `env:"AUTHGEAR_ENDPOINT"`
	// Name separates sessions of the same client in one store.
	Name       string `env:"AUTHGEAR_NAME" envDefault:"default"`
	ThirdParty bool   `env:"AUTHGEAR_THIRD_PARTY" envDefault:"false"`

	RedirectPort int    `env:"AUTHGEAR_REDIRECT_PORT" envDefault:"8765"`
	RedirectPath string `env:"AUTHGEAR_REDIRECT_PATH" envDefault:"/oauth2/callback"`

	// StorePath defaults to ~/.authgearctl/credentials.db.
	StorePath string `env:"AUTHGEAR_STORE_PATH"`
	// StoreHashKey and StoreBlockKey are hex encoded. When set, stored
	// credentials are sealed.
	StoreHashKey  string `env:"AUTHGEAR_STORE_HASH_KEY"`
	StoreBlockKey string `env:"AUTHGEAR_STORE_BLOCK_KEY"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"AUTHGEAR_LOG_LEVEL" envDefault:"info"`
}

// Load reads a .env file if present, then the environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.StorePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}
		cfg.StorePath = filepath.Join(home, ".authgearctl", "credentials.db")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return errors.New("AUTHGEAR_CLIENT_ID is required")
	}
	if c.Endpoint == "" {
		return errors.New("AUTHGEAR_ENDPOINT is required")
	}
	if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AUTHGEAR_ENDPOINT %q is not an absolute url", c.Endpoint)
	}
	if c.RedirectPort <= 0 || c.RedirectPort > 65535 {
		return fmt.Errorf("AUTHGEAR_REDIRECT_PORT %d is out of range", c.RedirectPort)
	}
	if !strings.HasPrefix(c.RedirectPath, "/") {
		return errors.New("AUTHGEAR_REDIRECT_PATH must start with /")
	}
	if (c.StoreHashKey == "") != (c.StoreBlockKey == "") {
		return errors.New("AUTHGEAR_STORE_HASH_KEY and AUTHGEAR_STORE_BLOCK_KEY must be set together")
	}
	if _, _, err := c.SealingKeys(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// SealingKeys decodes the store keys. Both are nil when sealing is off.
func (c *Config) SealingKeys() (hashKey, blockKey []byte, err error) {
	if c.StoreHashKey == "" {
		return nil, nil, nil
	}
	hashKey, err = hex.DecodeString(c.StoreHashKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding AUTHGEAR_STORE_HASH_KEY: %w", err)
	}
	blockKey, err = hex.DecodeString(c.StoreBlockKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding AUTHGEAR_STORE_BLOCK_KEY: %w", err)
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return nil, nil, fmt.Errorf("AUTHGEAR_STORE_BLOCK_KEY must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}
	return hashKey, blockKey, nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("AUTHGEAR_LOG_LEVEL: %w", err)
	}
	return level, nil
}

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
