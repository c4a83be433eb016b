package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig configures the device CLI. Values come from the YAML file,
// then PEBBLE_* environment variables, then command-line flags.
type ClientConfig struct {
	BaseURL           string `yaml:"base_url"`
	DataPath          string `yaml:"data_path"`
	LogLevel          string `yaml:"log_level"`
	IntervalSeconds   int    `yaml:"interval_seconds"`
	RequestTimeoutSec int    `yaml:"request_timeout_seconds"`
}

func (c ClientConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// DefaultClientPath is ~/.config/pebble/config.yaml, or config.yaml when
// the home directory cannot be resolved.
func DefaultClientPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "pebble", "config.yaml")
}

// LoadClient reads path if it exists. A missing file is not an error.
func LoadClient(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	applyClientEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

func applyClientEnv(cfg *ClientConfig) {
	if v := strings.TrimSpace(os.Getenv("PEBBLE_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PEBBLE_DATA_PATH")); v != "" {
		cfg.DataPath = v
	}
	if v := strings.TrimSpace(os.Getenv("PEBBLE_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("PEBBLE_SYNC_INTERVAL_SECONDS")); v != "" {
		cfg.IntervalSeconds = IntOrDefault(v, cfg.IntervalSeconds)
	}
	if v := strings.TrimSpace(os.Getenv("PEBBLE_REQUEST_TIMEOUT_SECONDS")); v != "" {
		cfg.RequestTimeoutSec = IntOrDefault(v, cfg.RequestTimeoutSec)
	}
}

func (c *ClientConfig) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8787"
	}
	if strings.TrimSpace(c.DataPath) == "" {
		c.DataPath = "pebble.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 30
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 30
	}
}
