// Package config loads the YAML application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left unset.
const (
	DefaultBaseURL   = "http://localhost:8080/events"
	DefaultCacheDir  = "cache"
	DefaultTimeoutMS = 30000
)

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration bytes.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Timeout returns the remote fetch timeout.
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.Remote.TimeoutMS) * time.Millisecond
}

func (c *AppConfig) applyDefaults() {
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = DefaultBaseURL
	}
	if c.Remote.TimeoutMS == 0 {
		c.Remote.TimeoutMS = DefaultTimeoutMS
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = DefaultCacheDir
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}
