// Copyright 2025 Joseph Cumines
//
// Configuration for the browser-use processes

// Package config loads settings shared by the tool-serving process, the
// native-host relay, and the diagnostics CLI. Defaults are overridden by an
// optional YAML file, which is in turn overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeycumines/BrowserUseSDK/internal/portfile"
)

// Config holds the configuration for the browser-use processes.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Config struct {
	// PortFilePath locates the port coordination file.
	PortFilePath string `yaml:"port_file"`

	// RequestTimeout bounds a single forwarded tool call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ReconnectBackoff is the relay's fixed delay between socket attempts.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// SkipPermissions asks the extension to skip per-call permission prompts.
	SkipPermissions bool `yaml:"skip_permissions"`

	// AuditLogPath enables audit logging of tool calls when non-empty.
	AuditLogPath string `yaml:"audit_log"`

	// Debug enables verbose process logging.
	Debug bool `yaml:"debug"`
}

// Load builds the configuration: defaults, then the YAML config file if one
// exists, then environment variables.
func Load() (*Config, error) {
	portFile, err := portfile.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("resolve default port file path: %w", err)
	}

	cfg := &Config{
		PortFilePath:     portFile,
		RequestTimeout:   30 * time.Second,
		ReconnectBackoff: 500 * time.Millisecond,
	}

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if cfg.PortFilePath == "" {
		return nil, fmt.Errorf("port file path cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.ReconnectBackoff <= 0 {
		return nil, fmt.Errorf("reconnect backoff must be positive, got %s", cfg.ReconnectBackoff)
	}

	return cfg, nil
}

// loadFile overlays the YAML config file, if present. A missing file is not an
// error; an unreadable or malformed one is.
func (c *Config) loadFile() error {
	path := os.Getenv("BROWSER_USE_CONFIG")
	explicit := path != ""
	if !explicit {
		dir, err := os.UserConfigDir()
		if err != nil {
			// No config dir means no default config file; env still applies.
			return nil
		}
		path = filepath.Join(dir, "browser-use-sdk", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables.
func (c *Config) loadEnv() error {
	c.PortFilePath = getEnv("BROWSER_USE_PORT_FILE", c.PortFilePath)
	c.AuditLogPath = getEnv("BROWSER_USE_AUDIT_LOG", c.AuditLogPath)
	c.SkipPermissions = getEnvAsBool("BROWSER_USE_SKIP_PERMISSIONS", c.SkipPermissions)
	c.Debug = getEnvAsBool("BROWSER_USE_DEBUG", c.Debug)

	var err error
	c.RequestTimeout, err = getEnvAsDuration("BROWSER_USE_REQUEST_TIMEOUT", c.RequestTimeout)
	if err != nil {
		return err
	}
	c.ReconnectBackoff, err = getEnvAsDuration("BROWSER_USE_RECONNECT_BACKOFF", c.ReconnectBackoff)
	if err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected duration, e.g., '30s', '5m')", key, value)
	}
	return d, nil
}
