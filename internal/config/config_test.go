package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/config"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
engine:
  shards: 8
  max_entries: 1000
  max_memory_bytes: 1048576
  lock_timeout: 2s
eviction:
  policy: lfu
  eviction_budget: 4
  sweep_interval: 500ms
snapshot:
  path: /tmp/store.snap
  load_on_startup: true
  save_on_shutdown: true
maintenance:
  workers: 3
  queue_size: 64
metrics:
  enabled: true
  port: 8080
  path: /m
logging:
  level: debug
  format: console
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Shards)
	assert.Equal(t, 1000, cfg.Engine.MaxEntries)
	assert.Equal(t, int64(1048576), cfg.Engine.MaxMemoryBytes)
	assert.Equal(t, 2*time.Second, cfg.Engine.LockTimeout)
	assert.Equal(t, "lfu", cfg.Eviction.Policy)
	assert.Equal(t, 4, cfg.Eviction.EvictionBudget)
	assert.Equal(t, 500*time.Millisecond, cfg.Eviction.SweepInterval)
	assert.Equal(t, "/tmp/store.snap", cfg.Snapshot.Path)
	assert.True(t, cfg.Snapshot.LoadOnStartup)
	assert.True(t, cfg.Snapshot.SaveOnShutdown)
	assert.Equal(t, 3, cfg.Maintenance.Workers)
	assert.Equal(t, 64, cfg.Maintenance.QueueSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
	assert.Equal(t, "/m", cfg.Metrics.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	path := writeConfigFile(t, `
engine:
  max_entries: 50
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Engine.Shards)
	assert.Equal(t, 50, cfg.Engine.MaxEntries)
	assert.Equal(t, 5*time.Second, cfg.Engine.LockTimeout)
	assert.Equal(t, "lru", cfg.Eviction.Policy)
	assert.Equal(t, 16, cfg.Eviction.EvictionBudget)
	assert.Equal(t, time.Second, cfg.Eviction.SweepInterval)
	assert.Equal(t, 2, cfg.Maintenance.Workers)
	assert.Equal(t, 32, cfg.Maintenance.QueueSize)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "engine: [this is not\n  a mapping")
	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 16, cfg.Engine.Shards)
	assert.Equal(t, 0, cfg.Engine.MaxEntries)
	assert.Equal(t, "lru", cfg.Eviction.Policy)
	assert.False(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "negative shards",
			mutate:  func(c *config.Config) { c.Engine.Shards = -1 },
			wantErr: "engine.shards",
		},
		{
			name:    "negative max entries",
			mutate:  func(c *config.Config) { c.Engine.MaxEntries = -5 },
			wantErr: "engine.max_entries",
		},
		{
			name:    "negative max memory",
			mutate:  func(c *config.Config) { c.Engine.MaxMemoryBytes = -1 },
			wantErr: "engine.max_memory_bytes",
		},
		{
			name:    "negative lock timeout",
			mutate:  func(c *config.Config) { c.Engine.LockTimeout = -time.Second },
			wantErr: "engine.lock_timeout",
		},
		{
			name:    "unknown eviction policy",
			mutate:  func(c *config.Config) { c.Eviction.Policy = "random" },
			wantErr: "eviction.policy",
		},
		{
			name:    "zero eviction budget",
			mutate:  func(c *config.Config) { c.Eviction.EvictionBudget = 0 },
			wantErr: "eviction.eviction_budget",
		},
		{
			name: "metrics port out of range",
			mutate: func(c *config.Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port",
		},
		{
			name: "metrics port ignored when disabled",
			mutate: func(c *config.Config) {
				c.Metrics.Enabled = false
				c.Metrics.Port = 70000
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
