package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Engine.Classifier.Deadline)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9090
policies:
  directory: /opt/policies
  reload_interval: 5m
engine:
  pipeline:
    max_concurrency: 8
    reject_when_full: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "/opt/policies", cfg.Policies.Directory)
	assert.Equal(t, 5*time.Minute, cfg.Policies.ReloadInterval)
	assert.Equal(t, 8, cfg.Engine.Pipeline.MaxConcurrency)
	assert.True(t, cfg.Engine.Pipeline.RejectWhenFull)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"host":"10.0.0.1","port":8443}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8443", cfg.Server.Addr())
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CYBERSENTINEL_HOST", "192.168.1.5")
	t.Setenv("CYBERSENTINEL_PORT", "7070")
	t.Setenv("CYBERSENTINEL_DB_ENABLED", "true")
	t.Setenv("CYBERSENTINEL_DB_PASSWORD", "hunter2")
	t.Setenv("CYBERSENTINEL_POLICY_DIR", "/srv/policies")
	t.Setenv("CYBERSENTINEL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.5:7070", cfg.Server.Addr())
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "/srv/policies", cfg.Policies.Directory)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: 5433, Username: "dlp",
		Password: "secret", Database: "events", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=dlp password=secret dbname=events sslmode=require",
		cfg.DSN())
}
