package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "privacy-audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Audit.K)
	assert.Equal(t, 3, cfg.Audit.L)
	assert.Equal(t, 0.2, cfg.Audit.T)
	assert.Equal(t, 1.0, cfg.Audit.RecommendedMaxEpsilon)
	assert.Equal(t, []string{"age_group", "gender", "state"}, cfg.QuasiIdentifiers)
	assert.Equal(t, []string{"diagnosis", "visit_type"}, cfg.SensitiveAttributes)
	assert.Equal(t, "suppress", cfg.EnforcementMethod)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, "healthcare_dw", cfg.Postgres.Database)
	assert.False(t, cfg.Postgres.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
audit:
  k: 3
  t: 0.35
quasi_identifiers: [age_group, gender]
enforcement_method: generalize
server:
  port: 9000
logging:
  format: text
postgres:
  enabled: true
  host: warehouse.internal
redis:
  ttl: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Audit.K)
	assert.Equal(t, 3, cfg.Audit.L)
	assert.Equal(t, 0.35, cfg.Audit.T)
	assert.Equal(t, []string{"age_group", "gender"}, cfg.QuasiIdentifiers)
	assert.Equal(t, "generalize", cfg.EnforcementMethod)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "warehouse.internal", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PRIVACY_AUDIT_K", "10")
	t.Setenv("PRIVACY_SERVER_PORT", "9191")
	t.Setenv("PRIVACY_POSTGRES_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Audit.K)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Postgres.Password)
}

func TestLoadInvalidThreshold(t *testing.T) {
	path := writeConfig(t, "audit:\n  t: 1.5\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no quasi identifiers", func(c *Config) { c.QuasiIdentifiers = nil }},
		{"unknown method", func(c *Config) { c.EnforcementMethod = "shuffle" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true }},
		{"zero k", func(c *Config) { c.Audit.K = 0 }},
	}

	require.NoError(t, NewDefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFactoryConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	fc := cfg.FactoryConfig()
	assert.Nil(t, fc.Postgres)
	assert.Nil(t, fc.Redis)
	assert.Nil(t, fc.S3)
	assert.Nil(t, fc.InfluxDB)

	cfg.Postgres.Enabled = true
	cfg.Influx.Enabled = true
	fc = cfg.FactoryConfig()
	require.NotNil(t, fc.Postgres)
	assert.Equal(t, "healthcare_dw", fc.Postgres.Database)
	require.NotNil(t, fc.InfluxDB)
	assert.Nil(t, fc.Redis)
}
