// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

// Package config loads curatord's layered configuration: built-in defaults,
// then an optional YAML file, then CURATOR_* environment variables. Nested
// keys use a double underscore in the environment, e.g.
// CURATOR_LOOP__POLL_INTERVAL=30s sets loop.poll_interval.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/curator/internal/modelproxy"
	"github.com/tomtom215/curator/internal/orchestrate"
	"github.com/tomtom215/curator/internal/strategy"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CURATOR_CONFIG"

// envPrefix namespaces curator's environment variables.
const envPrefix = "CURATOR_"

// DefaultConfigPaths are searched in order when CURATOR_CONFIG is unset.
var DefaultConfigPaths = []string{
	"curator.yaml",
	"config/curator.yaml",
	"/etc/curator/config.yaml",
}

// LogConfig configures the global logger.
type LogConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`

	// Format is "json" or "console".
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes file:line of the call site.
	Caller bool `koanf:"caller"`
}

// StoreConfig locates the workspace state store.
type StoreConfig struct {
	// Dir holds one JSON record per workspace.
	Dir string `koanf:"dir" validate:"required"`
}

// CacheConfig configures the two-tier inference cache.
type CacheConfig struct {
	// Dir is the badger directory for the durable tier. Ignored when
	// InMemory is set.
	Dir string `koanf:"dir"`

	// Capacity bounds the in-memory tier entry count.
	Capacity int `koanf:"capacity" validate:"gt=0"`

	// InMemory keeps the durable tier in memory too; for tests and demo.
	InMemory bool `koanf:"in_memory"`
}

// BackendConfig selects the model backend.
type BackendConfig struct {
	// Kind of backend. Only "memory" is built in; an external service
	// integrates by implementing the ModelBackend capability.
	Kind string `koanf:"kind" validate:"oneof=memory"`

	// TrainDelay simulates training latency on the memory backend.
	TrainDelay string `koanf:"train_delay"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	// Enabled serves /metrics when true.
	Enabled bool `koanf:"enabled"`

	// Addr is the listen address.
	Addr string `koanf:"addr" validate:"required_if=Enabled true"`
}

// DemoConfig seeds an in-memory corpus so curatord can run standalone.
type DemoConfig struct {
	// Enabled creates the demo workspace at startup.
	Enabled bool `koanf:"enabled"`

	// Workspace, Dataset, and Category name the seeded objects.
	Workspace string `koanf:"workspace"`
	Dataset   string `koanf:"dataset"`
	Category  string `koanf:"category"`

	// CorpusSize is how many synthetic items to generate.
	CorpusSize int `koanf:"corpus_size" validate:"gte=0"`

	// SeedLabels is how many of them start labeled.
	SeedLabels int `koanf:"seed_labels" validate:"gte=0"`
}

// Config is the root configuration tree.
type Config struct {
	Log      LogConfig                 `koanf:"log"`
	Store    StoreConfig               `koanf:"store"`
	Cache    CacheConfig               `koanf:"cache"`
	Backend  BackendConfig             `koanf:"backend"`
	Breaker  modelproxy.BreakerConfig  `koanf:"breaker"`
	Loop     orchestrate.LoopConfig    `koanf:"loop"`
	Trigger  orchestrate.TriggerConfig `koanf:"trigger"`
	Strategy strategy.Config           `koanf:"strategy"`
	Metrics  MetricsConfig             `koanf:"metrics"`
	Demo     DemoConfig                `koanf:"demo"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{Dir: "data/state"},
		Cache: CacheConfig{
			Dir:      "data/cache",
			Capacity: 10000,
		},
		Backend: BackendConfig{
			Kind:       "memory",
			TrainDelay: "5s",
		},
		Strategy: strategy.Config{Kind: strategy.KindHardMining},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Demo: DemoConfig{
			Workspace:  "demo",
			Dataset:    "demo-corpus",
			Category:   "relevant",
			CorpusSize: 200,
			SeedLabels: 20,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment, then validates it.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit file path; empty skips the file layer.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the tree with struct tags plus cross-field rules the tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	switch cfg.Strategy.Kind {
	case strategy.KindRandom, strategy.KindHardMining, strategy.KindRetrospective,
		strategy.KindCoreSet, strategy.KindDiscriminative, strategy.KindEnsemble:
	case strategy.KindHybrid:
		if len(cfg.Strategy.HybridKinds) != 2 {
			return fmt.Errorf("configuration invalid: strategy hybrid needs exactly two hybrid_kinds, got %d",
				len(cfg.Strategy.HybridKinds))
		}
	default:
		return fmt.Errorf("configuration invalid: unknown strategy kind %q", cfg.Strategy.Kind)
	}

	if !cfg.Cache.InMemory && cfg.Cache.Dir == "" {
		return fmt.Errorf("configuration invalid: cache.dir required unless cache.in_memory is set")
	}

	if cfg.Backend.TrainDelay != "" {
		if _, err := time.ParseDuration(cfg.Backend.TrainDelay); err != nil {
			return fmt.Errorf("configuration invalid: backend.train_delay: %w", err)
		}
	}
	return nil
}

// TrainDelayDuration returns the parsed backend training delay.
func (c *Config) TrainDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Backend.TrainDelay)
	if err != nil {
		return 0
	}
	return d
}

// envTransform maps CURATOR_LOOP__POLL_INTERVAL to loop.poll_interval.
// A single underscore stays inside a key; a double underscore descends one
// level in the tree.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		return envPath
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
