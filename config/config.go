// Package config loads the daemon's configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all process configuration. Every field comes from the
// environment; missing collaborator credentials select offline echo mode
// rather than failing, but malformed values are setup errors and fatal at
// process start.
type Config struct {
	// APIKey authenticates against the model provider. Empty selects the
	// local echo exchange.
	APIKey      string `env:"VIBELOOP_API_KEY"`
	Provider    string `env:"VIBELOOP_PROVIDER" envDefault:"openai"`
	CodeModel   string `env:"VIBELOOP_CODE_MODEL" envDefault:"gpt-4o-mini"`
	VisionModel string `env:"VIBELOOP_VISION_MODEL" envDefault:"gpt-4o-mini"`

	Listen      string `env:"VIBELOOP_LISTEN" envDefault:":8000"`
	StorageRoot string `env:"VIBELOOP_STORAGE_ROOT" envDefault:"storage"`
	WebRoot     string `env:"VIBELOOP_WEB_ROOT" envDefault:"web"`

	TickInterval   time.Duration `env:"VIBELOOP_TICK_INTERVAL" envDefault:"2s"`
	ViewportWidth  int           `env:"VIBELOOP_VIEWPORT_WIDTH" envDefault:"1280"`
	ViewportHeight int           `env:"VIBELOOP_VIEWPORT_HEIGHT" envDefault:"720"`
}

// Load parses and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for setup errors before the loop starts.
func (c *Config) Validate() error {
	if c.APIKey != "" {
		if c.Provider == "" {
			return fmt.Errorf("VIBELOOP_PROVIDER must be set when an API key is configured")
		}
		if c.CodeModel == "" || c.VisionModel == "" {
			return fmt.Errorf("VIBELOOP_CODE_MODEL and VIBELOOP_VISION_MODEL must be set when an API key is configured")
		}
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("VIBELOOP_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	return nil
}

// Offline reports whether the relay should be replaced with the local echo
// exchange.
func (c *Config) Offline() bool {
	return c.APIKey == ""
}
