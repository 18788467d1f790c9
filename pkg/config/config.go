// Package config loads bridge configuration from defaults, an optional
// YAML file, and environment variables. Later sources override earlier
// ones, with the environment always winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Server modes.
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
)

var (
	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")
	// ErrInvalidValue indicates a field has an invalid value.
	ErrInvalidValue = errors.New("invalid field value")
)

// Config is the umbrella configuration object for the bridge.
type Config struct {
	Kibana KibanaConfig `yaml:"kibana"`
	Search SearchConfig `yaml:"search"`
	Server ServerConfig `yaml:"server"`
}

// KibanaConfig holds backend connection settings. Credentials are resolved
// once at session creation and are immutable for the process lifetime.
type KibanaConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	VerifySSL      *bool  `yaml:"verify_ssl"`
}

// Timeout returns the per-call timeout as a duration.
func (k KibanaConfig) Timeout() time.Duration {
	return time.Duration(k.TimeoutSeconds) * time.Second
}

// SkipTLSVerify reports whether TLS verification should be relaxed.
func (k KibanaConfig) SkipTLSVerify() bool {
	return k.VerifySSL != nil && !*k.VerifySSL
}

// SearchConfig bounds alert searches.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxPageSize  int `yaml:"max_page_size"`
}

// ServerConfig selects how the tool surface is exposed.
type ServerConfig struct {
	Mode     string `yaml:"mode"`
	HTTPPort string `yaml:"http_port"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Kibana: KibanaConfig{
			TimeoutSeconds: 30,
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxPageSize:  100,
		},
		Server: ServerConfig{
			Mode:     ModeStdio,
			HTTPPort: "8080",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides. The result
// is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		// mergo with override: file values replace defaults, zero values
		// in the file leave defaults intact.
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge configuration from %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w in %s: %v", ErrInvalidYAML, path, err)
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() error {
	setString(&c.Kibana.URL, "KIBANA_URL")
	setString(&c.Kibana.APIKey, "KIBANA_API_KEY")
	setString(&c.Kibana.Username, "KIBANA_USERNAME")
	setString(&c.Kibana.Password, "KIBANA_PASSWORD")
	setString(&c.Server.HTTPPort, "HTTP_PORT")
	setString(&c.Server.Mode, "SERVER_MODE")

	if v := os.Getenv("KIBANA_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: KIBANA_TIMEOUT_SECONDS=%q is not an integer", ErrInvalidValue, v)
		}
		c.Kibana.TimeoutSeconds = n
	}
	if v := os.Getenv("KIBANA_VERIFY_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KIBANA_VERIFY_SSL=%q is not a boolean", ErrInvalidValue, v)
		}
		c.Kibana.VerifySSL = &b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks structural settings. Backend URL and credentials are
// validated by session construction, where their absence maps to the
// configuration error kind.
func (c *Config) Validate() error {
	if c.Server.Mode != ModeStdio && c.Server.Mode != ModeHTTP {
		return fmt.Errorf("%w: server mode %q (want %q or %q)",
			ErrInvalidValue, c.Server.Mode, ModeStdio, ModeHTTP)
	}
	if c.Kibana.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: kibana timeout_seconds must be positive", ErrInvalidValue)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("%w: search default_limit must be positive", ErrInvalidValue)
	}
	if c.Search.MaxPageSize < c.Search.DefaultLimit {
		return fmt.Errorf("%w: search max_page_size must be >= default_limit", ErrInvalidValue)
	}
	return nil
}
