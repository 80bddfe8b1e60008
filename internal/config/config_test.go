package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.yaml", `
providers:
  sompo:
    enabled: true
    username: agent01
    password: hunter2
    totp_secret: JBSWY3DPEHPK3PXP
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - secrets.yaml
app:
  log_level: debug
server:
  addr: ":9000"
browser:
  pool_size: 4
  headless: true
orchestrator:
  max_concurrent_sessions: 2
  session_timeout: 90s
profiles_dir: `+dir+`
providers:
  sompo:
    enabled: true
  koru:
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Browser.PoolSize)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Orchestrator.MaxConcurrentSessions)
	assert.Equal(t, 90*time.Second, cfg.Orchestrator.SessionTimeout)

	sompo := cfg.Providers["sompo"]
	assert.True(t, sompo.Enabled)
	assert.Equal(t, "agent01", sompo.Username)
	assert.Equal(t, "hunter2", sompo.Password)

	assert.Equal(t, []string{"sompo"}, cfg.EnabledProviders())
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app: {}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8750", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Browser.PoolSize)
	assert.Equal(t, 3, cfg.Orchestrator.MaxConcurrentSessions)
	assert.Equal(t, time.Hour, cfg.Orchestrator.ResultTTL)
}

func TestLoad_Rejections(t *testing.T) {
	dir := t.TempDir()

	t.Run("enabled provider without credentials", func(t *testing.T) {
		path := writeFile(t, dir, "nocreds.yaml", `
providers:
  sompo:
    enabled: true
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credentials")
	})

	t.Run("sessions exceed pool", func(t *testing.T) {
		path := writeFile(t, dir, "pool.yaml", `
browser:
  pool_size: 1
orchestrator:
  max_concurrent_sessions: 5
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds browser.pool_size")
	})

	t.Run("include cycle", func(t *testing.T) {
		writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
		path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "ghost.yaml"))
		assert.Error(t, err)
	})
}
