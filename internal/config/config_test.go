package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  path: `+filepath.Join(t.TempDir(), "data", "test.db")+`
business_hours:
  start_hour: 8
  end_hour: 12
  interval_minutes: 60
services:
  - "Consulta Médica"
redis:
  address: localhost:6379
  cache_ttl_seconds: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"Consulta Médica"}, cfg.Services)

	hours := cfg.Hours()
	assert.Equal(t, 8, hours.StartHour)
	assert.Equal(t, 12, hours.EndHour)
	assert.Equal(t, 60, hours.IntervalMinutes)

	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
}

func TestLoadDefaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "test.db")
	cfg, err := Load(writeConfig(t, "database:\n  path: "+dbPath+"\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultServices, cfg.Services)
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)

	hours := cfg.Hours()
	assert.Equal(t, 9, hours.StartHour)
	assert.Equal(t, 18, hours.EndHour)
	assert.Equal(t, 30, hours.IntervalMinutes)

	assert.Equal(t, time.Second, cfg.SubmitDelay())
	assert.Zero(t, cfg.CacheTTL(), "no redis address disables caching")

	// Database directory is created on load.
	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "test.db")+`
redis:
  address: localhost:6379
  password: ${TEST_REDIS_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/agendamed.db", cfg.Database.Path)
	assert.Equal(t, DefaultServices, cfg.Services)
}
