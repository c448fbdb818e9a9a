package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds key directory configuration
type EngineConfig struct {
	Shards         int           `yaml:"shards"`
	MaxEntries     int           `yaml:"max_entries"`
	MaxMemoryBytes int64         `yaml:"max_memory_bytes"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
}

// EvictionConfig holds eviction policy configuration
type EvictionConfig struct {
	Policy         string        `yaml:"policy"`
	EvictionBudget int           `yaml:"eviction_budget"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// SnapshotConfig holds snapshot persistence configuration
type SnapshotConfig struct {
	Path           string `yaml:"path"`
	LoadOnStartup  bool   `yaml:"load_on_startup"`
	SaveOnShutdown bool   `yaml:"save_on_shutdown"`
}

// MaintenanceConfig holds background worker configuration
type MaintenanceConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the store
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Eviction    EvictionConfig    `yaml:"eviction"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied, used when
// no config file is given.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Engine.Shards == 0 {
		cfg.Engine.Shards = 16
	}
	if cfg.Engine.LockTimeout == 0 {
		cfg.Engine.LockTimeout = 5 * time.Second
	}

	if cfg.Eviction.Policy == "" {
		cfg.Eviction.Policy = "lru"
	}
	if cfg.Eviction.EvictionBudget == 0 {
		cfg.Eviction.EvictionBudget = 16
	}
	if cfg.Eviction.SweepInterval == 0 {
		cfg.Eviction.SweepInterval = time.Second
	}

	if cfg.Maintenance.Workers == 0 {
		cfg.Maintenance.Workers = 2
	}
	if cfg.Maintenance.QueueSize == 0 {
		cfg.Maintenance.QueueSize = 32
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine.Shards < 0 {
		return fmt.Errorf("engine.shards cannot be negative")
	}
	if c.Engine.MaxEntries < 0 {
		return fmt.Errorf("engine.max_entries cannot be negative")
	}
	if c.Engine.MaxMemoryBytes < 0 {
		return fmt.Errorf("engine.max_memory_bytes cannot be negative")
	}
	if c.Engine.LockTimeout < 0 {
		return fmt.Errorf("engine.lock_timeout cannot be negative")
	}
	switch c.Eviction.Policy {
	case "lru", "lfu":
	default:
		return fmt.Errorf("eviction.policy must be lru or lfu, got %q", c.Eviction.Policy)
	}
	if c.Eviction.EvictionBudget < 1 {
		return fmt.Errorf("eviction.eviction_budget must be at least 1")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	return nil
}
