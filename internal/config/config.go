// Package config holds the configuration types and loading logic for the
// duraq command-line tool. The library itself is configured in code via
// queue.Options; this package exists so the CLI can describe a queue once in
// a YAML file instead of repeating flags on every invocation.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arthurmilliken/duraq/internal/queue"
)

// Config is the root configuration for the duraq CLI.
type Config struct {
	// Path is the queue's store file.
	Path string `yaml:"path"`

	Queue QueueConfig `yaml:"queue"`
	Sweep SweepConfig `yaml:"sweep"`
}

// QueueConfig mirrors queue.Options in YAML form.
type QueueConfig struct {
	Name                  string `yaml:"name"`
	Dedup                 bool   `yaml:"dedup"`
	RequireAck            bool   `yaml:"require_ack"`
	VisibilityTimeoutSecs int    `yaml:"visibility_timeout_secs"`
	MaxReceives           int    `yaml:"max_receives"`
	MaxRetentionHours     int    `yaml:"max_retention_hours"`
	SweepLive             bool   `yaml:"sweep_live"`
}

// SweepConfig controls the `duraq sweep` command and the background sweeper.
type SweepConfig struct {
	// Interval is a Go duration string used when sweeping in the background.
	Interval string `yaml:"interval"`
}

// Default returns a Config populated with the library defaults.
func Default() *Config {
	opts := queue.DefaultOptions()
	return &Config{
		Path: "duraq.db",
		Queue: QueueConfig{
			Name:                  opts.Name,
			Dedup:                 opts.Dedup,
			RequireAck:            opts.RequireAck,
			VisibilityTimeoutSecs: opts.VisibilityTimeoutSecs,
			MaxReceives:           opts.MaxReceives,
			MaxRetentionHours:     opts.MaxRetentionHours,
		},
		Sweep: SweepConfig{Interval: "1h"},
	}
}

// Load reads the YAML file at path and overlays it on Default(). A missing
// file is not an error — the defaults are returned — so the CLI runs with no
// config file at all. Environment variables are applied last:
//
//	DURAQ_PATH   — overrides path
//	DURAQ_QUEUE  — overrides queue.name
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DURAQ_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("DURAQ_QUEUE"); v != "" {
		cfg.Queue.Name = v
	}
}

// Validate checks the config for consistency, delegating the queue fields to
// the library's own validation.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("config: path must not be empty")
	}
	return c.Options().Validate()
}

// Options converts the YAML form into queue.Options.
func (c *Config) Options() queue.Options {
	return queue.Options{
		Name:                  c.Queue.Name,
		Dedup:                 c.Queue.Dedup,
		RequireAck:            c.Queue.RequireAck,
		VisibilityTimeoutSecs: c.Queue.VisibilityTimeoutSecs,
		MaxReceives:           c.Queue.MaxReceives,
		MaxRetentionHours:     c.Queue.MaxRetentionHours,
		SweepLive:             c.Queue.SweepLive,
	}
}
