package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 4*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 1, cfg.Session.DefaultStreamLimit)
	assert.Equal(t, float64(90), cfg.Session.CompletionPercent)
	assert.Equal(t, 15*time.Minute, cfg.Token.Grace)
	assert.Equal(t, 60*time.Second, cfg.Token.Leeway)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STREAMGATE_PORT", "9090")
	t.Setenv("STREAMGATE_SESSION_TTL", "2h")
	t.Setenv("STREAMGATE_DEFAULT_STREAM_LIMIT", "3")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STREAMGATE_TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")

	manager := NewConfigManager()
	require.NoError(t, manager.LoadConfig(""))
	cfg := manager.GetConfig()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 3, cfg.Session.DefaultStreamLimit)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.TrustedProxies)
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
session:
  ttl: 30m
  default_stream_limit: 2
cdn:
  base_url: https://cdn.test.example
`), 0644))

	manager := NewConfigManager()
	require.NoError(t, manager.LoadConfig(path))
	cfg := manager.GetConfig()

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 2, cfg.Session.DefaultStreamLimit)
	assert.Equal(t, "https://cdn.test.example", cfg.CDN.BaseURL)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("rejects invalid port", func(t *testing.T) {
		t.Setenv("STREAMGATE_PORT", "70000")
		manager := NewConfigManager()
		assert.Error(t, manager.LoadConfig(""))
	})

	t.Run("rejects unknown database type", func(t *testing.T) {
		t.Setenv("DATABASE_TYPE", "oracle")
		manager := NewConfigManager()
		assert.Error(t, manager.LoadConfig(""))
	})

	t.Run("rejects zero stream limit", func(t *testing.T) {
		t.Setenv("STREAMGATE_DEFAULT_STREAM_LIMIT", "0")
		manager := NewConfigManager()
		assert.Error(t, manager.LoadConfig(""))
	})

	t.Run("rejects completion percent above 100", func(t *testing.T) {
		t.Setenv("STREAMGATE_COMPLETION_PERCENT", "150")
		manager := NewConfigManager()
		assert.Error(t, manager.LoadConfig(""))
	})
}

func TestDerivedDatabasePath(t *testing.T) {
	t.Setenv("STREAMGATE_DATA_DIR", "/var/lib/streamgate")

	manager := NewConfigManager()
	require.NoError(t, manager.LoadConfig(""))
	cfg := manager.GetConfig()

	assert.Equal(t, filepath.Join("/var/lib/streamgate", "streamgate.db"), cfg.Database.DatabasePath)
}

func TestConfigWatchers(t *testing.T) {
	manager := NewConfigManager()

	changed := make(chan struct{}, 1)
	manager.AddWatcher(func(oldConfig, newConfig *Config) {
		changed <- struct{}{}
	})

	require.NoError(t, manager.LoadConfig(""))

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}
}
