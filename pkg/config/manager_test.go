package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load())

	cfg, err := m.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/api", cfg.API.Prefix)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.False(t, cfg.Logger.Dev)
	assert.False(t, cfg.ErrorTracking.Enabled)
	assert.Equal(t, 100.0, cfg.Middleware.RateLimitRPS)
	assert.Equal(t, int64(10485760), cfg.Middleware.MaxRequestSize)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
api:
  prefix: "/v1"
database:
  driver: sqlite-bun
  dsn: file:test.db
logger:
  dev: true
`), 0o644))

	m := NewManagerWithOptions(WithConfigFile(path))
	require.NoError(t, m.Load())

	cfg, err := m.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.API.Prefix)
	assert.Equal(t, "sqlite-bun", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.True(t, cfg.Logger.Dev)

	// Defaults still fill the gaps.
	assert.Equal(t, 100.0, cfg.Middleware.RateLimitRPS)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VERTZ_SERVER_ADDR", ":7070")

	m := NewManager()
	require.NoError(t, m.Load())
	assert.Equal(t, ":7070", m.GetString("server.addr"))
}

func TestSetOverride(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load())

	m.Set("database.driver", "sqlite-gorm")
	cfg, err := m.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite-gorm", cfg.Database.Driver)
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	m := NewManagerWithOptions(WithConfigPath(t.TempDir()))
	assert.NoError(t, m.Load())
}
