// Package config defines the construction-time configuration surface of
// the state store: backend selection, backend settings, expiry policy,
// and diagnostics.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/agentstate/internal/persist"
)

// Config is the full YAML configuration document.
type Config struct {
	Backend     string         `yaml:"backend"`
	File        FileConfig     `yaml:"file"`
	Postgres    PostgresConfig `yaml:"postgres"`
	Etcd        EtcdConfig     `yaml:"etcd"`
	Expiry      ExpiryConfig   `yaml:"expiry"`
	MetricsAddr string         `yaml:"metrics_addr"`
	LogLevel    string         `yaml:"log_level"`
}

// FileConfig configures the file backend.
type FileConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// EtcdConfig configures the etcd backend.
type EtcdConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	Namespace   string   `yaml:"namespace"`
	DialTimeout string   `yaml:"dial_timeout"`
}

// ExpiryConfig configures the optional idle-session sweep. A zero or
// empty TTL disables it.
type ExpiryConfig struct {
	TTL      string `yaml:"ttl"`
	Schedule string `yaml:"schedule"`
}

// Default returns the configuration used when no file is present:
// file-backed persistence next to the working directory, no expiry.
func Default() *Config {
	return &Config{
		Backend:  string(persist.KindFile),
		File:     FileConfig{Path: "agentstate.json"},
		Etcd:     EtcdConfig{DialTimeout: "5s"},
		Expiry:   ExpiryConfig{Schedule: "@every 1m"},
		LogLevel: "info",
	}
}

// Load reads the configuration at path, layered over defaults. A
// missing file yields the defaults; a malformed one is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch persist.Kind(c.Backend) {
	case persist.KindMemory, persist.KindFile, persist.KindPostgres, persist.KindEtcd:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if persist.Kind(c.Backend) == persist.KindFile && c.File.Path == "" {
		return errors.New("file backend requires file.path")
	}
	if persist.Kind(c.Backend) == persist.KindPostgres && c.Postgres.DSN == "" {
		return errors.New("postgres backend requires postgres.dsn")
	}
	if persist.Kind(c.Backend) == persist.KindEtcd && len(c.Etcd.Endpoints) == 0 {
		return errors.New("etcd backend requires etcd.endpoints")
	}

	if _, err := c.ExpiryTTL(); err != nil {
		return err
	}
	if _, err := c.EtcdDialTimeout(); err != nil {
		return err
	}
	return nil
}

// ExpiryTTL parses the expiry TTL; empty means disabled.
func (c *Config) ExpiryTTL() (time.Duration, error) {
	if c.Expiry.TTL == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.Expiry.TTL)
	if err != nil {
		return 0, fmt.Errorf("expiry.ttl %q: %w", c.Expiry.TTL, err)
	}
	return ttl, nil
}

// EtcdDialTimeout parses the etcd dial timeout.
func (c *Config) EtcdDialTimeout() (time.Duration, error) {
	if c.Etcd.DialTimeout == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Etcd.DialTimeout)
	if err != nil {
		return 0, fmt.Errorf("etcd.dial_timeout %q: %w", c.Etcd.DialTimeout, err)
	}
	return d, nil
}

// PersistOptions maps the configuration onto backend options.
func (c *Config) PersistOptions() (persist.Options, error) {
	dialTimeout, err := c.EtcdDialTimeout()
	if err != nil {
		return persist.Options{}, err
	}
	return persist.Options{
		Kind:            persist.Kind(c.Backend),
		FilePath:        c.File.Path,
		PostgresDSN:     c.Postgres.DSN,
		EtcdEndpoints:   c.Etcd.Endpoints,
		EtcdNamespace:   c.Etcd.Namespace,
		EtcdDialTimeout: dialTimeout,
	}, nil
}

// SlogLevel maps the configured level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
