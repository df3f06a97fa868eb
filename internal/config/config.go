// Package config loads the server configuration from an optional YAML file
// with environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Every field has a usable default so
// the server runs without a config file. Durations arrive as strings
// ("10s", "5m") and are parsed into the typed fields by Load.
type Config struct {
	Server struct {
		// Addr is the HTTP control-plane listen address.
		Addr string `yaml:"addr"`
		// HealthAddr is the gRPC health probe listen address. Empty disables
		// the probe listener.
		HealthAddr string `yaml:"health_addr"`
		// ShutdownTimeoutStr bounds graceful HTTP shutdown.
		ShutdownTimeoutStr string        `yaml:"shutdown_timeout"`
		ShutdownTimeout    time.Duration `yaml:"-"`
	} `yaml:"server"`

	Database struct {
		// Path is the SQLite database file.
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		// Addr enables the symbols cache when non-empty.
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTLStr   string        `yaml:"ttl"`
		TTL      time.Duration `yaml:"-"`
	} `yaml:"redis"`

	Log struct {
		// Level is a zerolog level name (debug, info, warn, error).
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8880"
	cfg.Server.HealthAddr = ":8881"
	cfg.Server.ShutdownTimeoutStr = "10s"
	cfg.Database.Path = "marketstream.db"
	cfg.Redis.TTLStr = "10m"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults untouched. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	var err error
	if cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("parse shutdown_timeout: %w", err)
	}
	if cfg.Redis.TTL, err = time.ParseDuration(cfg.Redis.TTLStr); err != nil {
		return nil, fmt.Errorf("parse redis ttl: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKETSTREAM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MARKETSTREAM_HEALTH_ADDR"); v != "" {
		cfg.Server.HealthAddr = v
	}
	if v := os.Getenv("MARKETSTREAM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MARKETSTREAM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MARKETSTREAM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MARKETSTREAM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
