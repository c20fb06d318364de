package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/catalog"
	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
database:
  driver: memory
engine:
  lock_timeout: 2s
  deletion_policy: cascade
authz:
  roles:
    editor:
      capabilities: ["orders.write"]
    manager:
      capabilities: ["orders.approve"]
      inherits: ["editor"]
  actors:
    u1: ["editor"]
    m1: ["manager"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Engine.LockTimeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.LockTTL)
	assert.True(t, cfg.Engine.StrictCallbacks)
	assert.Equal(t, []string{"editor"}, cfg.Authz.Roles["manager"].Inherits)
	assert.Equal(t, []string{"manager"}, cfg.Authz.Actors["m1"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WFE_SERVER_PORT", "7070")
	t.Setenv("WFE_DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/wfe")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/wfe", cfg.Database.DSN)
}

func TestLoad_WithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/workflow.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Path = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"bad policy", func(c *Config) { c.Engine.DeletionPolicy = "orphan" }},
		{"zero lock timeout", func(c *Config) { c.Engine.LockTimeout = 0 }},
		{"zero cache ttl", func(c *Config) { c.Cache.Enabled = true; c.Cache.TTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())
	assert.Equal(t, catalog.PolicyCascade, cc.Engine.DeletionPolicy)
	assert.Equal(t, []string{"orders.approve"}, cc.Authz.Roles["manager"].Capabilities)
	assert.Equal(t, 9090, cc.Server.Port)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Authz.ReloadInterval)
	assert.Equal(t, []string{"manager"}, cfg.Authz.Actors["m1"])
	assert.Equal(t, []string{"author"}, cfg.Authz.Roles["manager"].Inherits)

	ccfg := cfg.ToContainerConfig()
	assert.Equal(t, 30*time.Second, ccfg.Reload.Interval)
	assert.NoError(t, func() error {
		ccfg.Reload.Source = func() (authz.Config, error) { return ccfg.Authz, nil }
		return ccfg.Validate()
	}())
}
