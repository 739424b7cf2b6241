package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/harmonia/internal/core/resource/registry"
)

const sample = `
log:
  level: debug
  encoding: console
resources:
  root: ./data
  preload: true
  preload_workers: 4
  entries:
    - key: Cosmetic
      locator: tables/cosmetic.json
    - key: Weapon
      locator: "sqlite://db/items.sqlite?table=weapons&struct=WeaponRow"
world:
  role: authority
  store:
    driver: snapshot
    path: ./save/world.snap
  autosave_interval: 30s
server:
  tick_interval: 100ms
  metrics_addr: ":9102"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harmonia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Encoding)
	assert.True(t, cfg.Resources.Preload)
	assert.Equal(t, 4, cfg.Resources.PreloadWorkers)
	assert.Equal(t, []registry.Entry{
		{Key: "Cosmetic", Locator: "tables/cosmetic.json"},
		{Key: "Weapon", Locator: "sqlite://db/items.sqlite?table=weapons&struct=WeaponRow"},
	}, cfg.Resources.Entries)
	assert.Equal(t, "snapshot", cfg.World.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.World.AutosaveInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Server.TickInterval)
	assert.Equal(t, ":9102", cfg.Server.MetricsAddr)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("HARMONIA_LOG_LEVEL", "warn")
	t.Setenv("HARMONIA_WORLD_ROLE", "proxy")
	t.Setenv("HARMONIA_WORLD_STORE_DRIVER", "sqlite")
	t.Setenv("HARMONIA_WORLD_STORE_PATH", "/tmp/world.sqlite")
	t.Setenv("HARMONIA_SERVER_TICK_INTERVAL", "1s")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "proxy", cfg.World.Role)
	assert.Equal(t, "sqlite", cfg.World.Store.Driver)
	assert.Equal(t, "/tmp/world.sqlite", cfg.World.Store.Path)
	assert.Equal(t, time.Second, cfg.Server.TickInterval)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "log:\n  colour: red\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Resources.PreloadWorkers = 0
	cfg.Resources.Entries = []registry.Entry{
		{Key: "A", Locator: "a.json"},
		{Key: "A", Locator: "b.json"},
		{Locator: "c.json"},
	}
	cfg.World.Role = "spectator"
	cfg.World.Store.Driver = "sqlite"
	cfg.Server.TickInterval = 0

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	msg := err.Error()
	for _, want := range []string{
		"log.level", "preload_workers", "duplicate key", "empty key",
		"world.role", "world.store.path", "tick_interval",
	} {
		assert.Contains(t, msg, want)
	}
}
