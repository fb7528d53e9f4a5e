// Package config loads the service configuration once at startup. The
// resulting Config is read-only afterwards and handed explicitly to the
// components that need it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string  `yaml:"database_url"`
	ListenAddr  string  `yaml:"listen_addr"`
	LogLevel    string  `yaml:"log_level"`
	Pool        Pool    `yaml:"pool"`
	Session     Session `yaml:"session"`
}

type Pool struct {
	MaxConns int32 `yaml:"max_conns"`
	MinConns int32 `yaml:"min_conns"`
}

// Session parameterizes bearer-token issuance.
type Session struct {
	TokenPrefix string `yaml:"token_prefix"`
	TTLHours    int    `yaml:"ttl_hours"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Pool:       Pool{MaxConns: 10, MinConns: 1},
		Session:    Session{TokenPrefix: "ses_", TTLHours: 24 * 14},
	}
}

// Load reads an optional YAML file and then applies environment overrides.
// A missing file is not an error; a missing database URL is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (config file or DATABASE_URL)")
	}
	return cfg, nil
}
