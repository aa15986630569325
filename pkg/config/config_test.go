package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Storage.URL = "postgres://localhost/warden"
	return cfg
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_LIST", " db, file ,,s3 ")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_STR_NOT_SET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_BOOL_NOT_SET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_BAD_INT", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
	assert.Equal(t, []string{"db", "file", "s3"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, []string{"db"}, getEnvList("TEST_LIST_NOT_SET", []string{"db"}))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, CacheBackendLRU, cfg.Cache.Backend)
	assert.Equal(t, rbac.DefaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, invitations.DefaultTTL, cfg.Invitations.TTL)
	assert.Equal(t, invitations.DefaultSweepSchedule, cfg.Invitations.SweepSchedule)
	assert.Equal(t, rbac.DefaultLevelRange(), cfg.RBAC.LevelRange())
	assert.Equal(t, []string{AuditSinkDB}, cfg.Audit.Sinks)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("WARDEN_STORE_DRIVER", "sqlite3")
	t.Setenv("WARDEN_STORE_URL", "file:warden.db")
	t.Setenv("WARDEN_STORE_TIMEOUT", "2s")
	t.Setenv("WARDEN_CACHE_BACKEND", "REDIS")
	t.Setenv("WARDEN_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("WARDEN_CACHE_TTL", "30s")
	t.Setenv("WARDEN_INVITATION_TTL", "72h")
	t.Setenv("WARDEN_SWEEP_SCHEDULE", "@every 5m")
	t.Setenv("WARDEN_ROLE_LEVEL_MAX", "6")
	t.Setenv("WARDEN_AUDIT_SINKS", "db,s3")
	t.Setenv("WARDEN_AUDIT_S3_BUCKET", "audit-archive")
	t.Setenv("WARDEN_LOG_LEVEL", "debug")
	t.Setenv("WARDEN_OTEL_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, "file:warden.db", cfg.Storage.URL)
	assert.Equal(t, 2*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 72*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, "@every 5m", cfg.Invitations.SweepSchedule)
	assert.Equal(t, rbac.LevelRange{Min: 1, Max: 6}, cfg.RBAC.LevelRange())
	assert.True(t, cfg.Audit.HasSink(AuditSinkS3))
	assert.False(t, cfg.Audit.HasSink(AuditSinkFile))
	assert.Equal(t, "audit-archive", cfg.Audit.S3.Bucket)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.True(t, cfg.Observability.OTel().Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9191"
storage:
  driver: postgres
  url: postgres://db/warden
  timeout: 3s
cache:
  ttl: 1m
invitations:
  ttl: 48h
  sweep_schedule: "0 * * * *"
audit:
  sinks: [db, file]
  file:
    base_path: /tmp/warden-audit
observability:
  log_level: warn
`), 0o600))

	t.Setenv("WARDEN_CACHE_TTL", "10s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Server.Port)
	assert.Equal(t, "postgres://db/warden", cfg.Storage.URL)
	assert.Equal(t, 3*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Cache.TTL, "env wins over the file")
	assert.Equal(t, 48*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, "0 * * * *", cfg.Invitations.SweepSchedule)
	assert.Equal(t, []string{"db", "file"}, cfg.Audit.Sinks)
	assert.Equal(t, "/tmp/warden-audit", cfg.Audit.File.BasePath)
	assert.True(t, cfg.Audit.File.Rotate, "unset file keys keep their defaults")
	assert.Equal(t, observability.WarnLevel, cfg.Observability.Level())
	// untouched sections keep defaults
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadConfig_UsesConfigFileVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  url: postgres://db/warden\n"), 0o600))
	t.Setenv("WARDEN_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/warden", cfg.Storage.URL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [not, a, map]"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	// store URL is required
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mysql" }, wantErr: true},
		{name: "missing url", mutate: func(c *Config) { c.Storage.URL = "" }, wantErr: true},
		{name: "zero store timeout", mutate: func(c *Config) { c.Storage.Timeout = 0 }, wantErr: true},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "redis cache without url", mutate: func(c *Config) { c.Cache.Backend = CacheBackendRedis }, wantErr: true},
		{name: "redis cache", mutate: func(c *Config) {
			c.Cache.Backend = CacheBackendRedis
			c.Storage.RedisURL = "redis://localhost:6379"
		}},
		{name: "zero lru size", mutate: func(c *Config) { c.Cache.Size = 0 }, wantErr: true},
		{name: "zero cache ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: true},
		{name: "zero invitation ttl", mutate: func(c *Config) { c.Invitations.TTL = 0 }, wantErr: true},
		{name: "bad schedule", mutate: func(c *Config) { c.Invitations.SweepSchedule = "often" }, wantErr: true},
		{name: "bad schedule with sweep off", mutate: func(c *Config) {
			c.Invitations.SweepSchedule = "often"
			c.Invitations.SweepEnabled = false
		}},
		{name: "inverted level range", mutate: func(c *Config) { c.RBAC.MinLevel = 5 }, wantErr: true},
		{name: "zero min level", mutate: func(c *Config) { c.RBAC.MinLevel = 0 }, wantErr: true},
		{name: "no audit sinks", mutate: func(c *Config) { c.Audit.Sinks = nil }, wantErr: true},
		{name: "unknown audit sink", mutate: func(c *Config) { c.Audit.Sinks = []string{"kafka"} }, wantErr: true},
		{name: "file sink without path", mutate: func(c *Config) {
			c.Audit.Sinks = []string{AuditSinkFile}
			c.Audit.File.BasePath = ""
		}, wantErr: true},
		{name: "s3 sink without bucket", mutate: func(c *Config) { c.Audit.Sinks = []string{AuditSinkS3} }, wantErr: true},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9090", ServerConfig{Host: "127.0.0.1", Port: "9090"}.Addr())
}
