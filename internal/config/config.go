// Package config loads runtime settings from a YAML file with environment
// overrides on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

// EnvPrefix prefixes every environment override, e.g. HARMONIA_LOG_LEVEL.
const EnvPrefix = "HARMONIA_"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Resources ResourcesConfig `yaml:"resources" envPrefix:"RESOURCES_"`
	World     WorldConfig     `yaml:"world" envPrefix:"WORLD_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`
	Encoding string `yaml:"encoding" env:"ENCODING"`
}

type ResourcesConfig struct {
	// Root is the base directory for relative locators.
	Root           string           `yaml:"root" env:"ROOT"`
	Preload        bool             `yaml:"preload" env:"PRELOAD"`
	PreloadWorkers int              `yaml:"preload_workers" env:"PRELOAD_WORKERS"`
	Entries        []registry.Entry `yaml:"entries"`
}

type WorldConfig struct {
	Role             string        `yaml:"role" env:"ROLE"`
	Store            StoreConfig   `yaml:"store" envPrefix:"STORE_"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" env:"AUTOSAVE_INTERVAL"`
}

type StoreConfig struct {
	// Driver is "sqlite", "snapshot" or empty for no persistence.
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

type ServerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	// MetricsAddr enables the /metrics endpoint when set.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Encoding: "json"},
		Resources: ResourcesConfig{
			Root:           ".",
			PreloadWorkers: 1,
		},
		World: WorldConfig{
			Role:             "authority",
			AutosaveInterval: time.Minute,
		},
		Server: ServerConfig{TickInterval: 50 * time.Millisecond},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		add("log.encoding %q", c.Log.Encoding)
	}
	if c.Resources.PreloadWorkers < 1 {
		add("resources.preload_workers must be at least 1")
	}
	seen := make(map[registry.Key]struct{}, len(c.Resources.Entries))
	for i, e := range c.Resources.Entries {
		if e.Key == "" {
			add("resources.entries[%d]: empty key", i)
			continue
		}
		if _, dup := seen[e.Key]; dup {
			add("resources.entries[%d]: duplicate key %q", i, e.Key)
		}
		seen[e.Key] = struct{}{}
	}
	switch c.World.Role {
	case "authority", "proxy":
	default:
		add("world.role %q", c.World.Role)
	}
	switch c.World.Store.Driver {
	case "":
	case "sqlite", "snapshot":
		if c.World.Store.Path == "" {
			add("world.store.path is required for driver %q", c.World.Store.Driver)
		}
	default:
		add("world.store.driver %q", c.World.Store.Driver)
	}
	if c.World.AutosaveInterval < 0 {
		add("world.autosave_interval must not be negative")
	}
	if c.Server.TickInterval <= 0 {
		add("server.tick_interval must be positive")
	}
	return errors.Join(errs...)
}
