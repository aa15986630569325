package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage"
)

// Cache backends
const (
	CacheBackendLRU   = "lru"
	CacheBackendRedis = "redis"
)

// Audit sink names
const (
	AuditSinkDB   = "db"
	AuditSinkFile = "file"
	AuditSinkS3   = "s3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration for the ops endpoints
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	Cache       CacheConfig      `yaml:"cache"`
	Invitations InvitationConfig `yaml:"invitations"`
	RBAC        RBACConfig       `yaml:"rbac"`
	Audit       AuditConfig      `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// CacheConfig holds permission cache settings
type CacheConfig struct {
	Backend string        `yaml:"backend"` // lru or redis
	TTL     time.Duration `yaml:"ttl"`
	Size    int           `yaml:"size"`   // lru only
	Prefix  string        `yaml:"prefix"` // redis only
}

// InvitationConfig holds invitation lifetime and sweep settings
type InvitationConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepEnabled  bool          `yaml:"sweep_enabled"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	SweepLockTTL  time.Duration `yaml:"sweep_lock_ttl"` // redis lock; zero disables it
}

// RBACConfig holds role and catalog settings
type RBACConfig struct {
	MinLevel    int    `yaml:"min_level"`
	MaxLevel    int    `yaml:"max_level"`
	CatalogFile string `yaml:"catalog_file"` // empty uses the built-in catalog
}

// LevelRange returns the configured role level bounds
func (r RBACConfig) LevelRange() rbac.LevelRange {
	return rbac.LevelRange{Min: rbac.RoleLevel(r.MinLevel), Max: rbac.RoleLevel(r.MaxLevel)}
}

// AuditConfig selects and configures audit sinks
type AuditConfig struct {
	Sinks        []string               `yaml:"sinks"`
	WriteTimeout time.Duration          `yaml:"write_timeout"`
	File         audit.FileLoggerConfig `yaml:"file"`
	S3           audit.S3Config         `yaml:"s3"`
}

// HasSink reports whether name is among the configured sinks
func (a AuditConfig) HasSink(name string) bool {
	for _, s := range a.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: storage.DefaultConfig(),
		Cache: CacheConfig{
			Backend: CacheBackendLRU,
			TTL:     rbac.DefaultCacheTTL,
			Size:    rbac.DefaultCacheSize,
			Prefix:  "warden:perm:",
		},
		Invitations: InvitationConfig{
			TTL:           invitations.DefaultTTL,
			SweepEnabled:  true,
			SweepSchedule: invitations.DefaultSweepSchedule,
			SweepLockTTL:  5 * time.Minute,
		},
		RBAC: RBACConfig{
			MinLevel: int(rbac.LevelOwner),
			MaxLevel: int(rbac.LevelViewer),
		},
		Audit: AuditConfig{
			Sinks:        []string{AuditSinkDB},
			WriteTimeout: 5 * time.Second,
			File:         audit.DefaultFileLoggerConfig(),
			S3:           audit.S3Config{Region: "us-east-1", Prefix: "audit"},
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "warden",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads configuration from WARDEN_CONFIG_FILE, if set, and then
// from environment variables
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("WARDEN_CONFIG_FILE"))
}

// Load applies defaults, then the YAML file at path when path is not empty,
// then environment overrides, and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides any field whose variable is set
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("WARDEN_HOST", c.Server.Host)
	c.Server.Port = getEnv("WARDEN_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Store
	c.Storage.Driver = getEnv("WARDEN_STORE_DRIVER", c.Storage.Driver)
	c.Storage.URL = getEnv("WARDEN_STORE_URL", c.Storage.URL)
	c.Storage.ReplicaURLs = getEnvList("WARDEN_STORE_REPLICA_URLS", c.Storage.ReplicaURLs)
	c.Storage.MaxConns = getEnvInt("WARDEN_STORE_MAX_CONNS", c.Storage.MaxConns)
	c.Storage.MinConns = getEnvInt("WARDEN_STORE_MIN_CONNS", c.Storage.MinConns)
	c.Storage.Timeout = getEnvDuration("WARDEN_STORE_TIMEOUT", c.Storage.Timeout)
	c.Storage.ReplicaCheckInterval = getEnvDuration("WARDEN_STORE_REPLICA_CHECK_INTERVAL", c.Storage.ReplicaCheckInterval)

	// Redis
	c.Storage.RedisURL = getEnv("WARDEN_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPassword = getEnv("WARDEN_REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = getEnvInt("WARDEN_REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisMaxRetries = getEnvInt("WARDEN_REDIS_MAX_RETRIES", c.Storage.RedisMaxRetries)
	c.Storage.RedisPoolSize = getEnvInt("WARDEN_REDIS_POOL_SIZE", c.Storage.RedisPoolSize)

	// Cache
	c.Cache.Backend = strings.ToLower(getEnv("WARDEN_CACHE_BACKEND", c.Cache.Backend))
	c.Cache.TTL = getEnvDuration("WARDEN_CACHE_TTL", c.Cache.TTL)
	c.Cache.Size = getEnvInt("WARDEN_CACHE_SIZE", c.Cache.Size)
	c.Cache.Prefix = getEnv("WARDEN_CACHE_PREFIX", c.Cache.Prefix)

	// Invitations
	c.Invitations.TTL = getEnvDuration("WARDEN_INVITATION_TTL", c.Invitations.TTL)
	c.Invitations.SweepEnabled = getEnvBool("WARDEN_SWEEP_ENABLED", c.Invitations.SweepEnabled)
	c.Invitations.SweepSchedule = getEnv("WARDEN_SWEEP_SCHEDULE", c.Invitations.SweepSchedule)
	c.Invitations.SweepLockTTL = getEnvDuration("WARDEN_SWEEP_LOCK_TTL", c.Invitations.SweepLockTTL)

	// RBAC
	c.RBAC.MinLevel = getEnvInt("WARDEN_ROLE_LEVEL_MIN", c.RBAC.MinLevel)
	c.RBAC.MaxLevel = getEnvInt("WARDEN_ROLE_LEVEL_MAX", c.RBAC.MaxLevel)
	c.RBAC.CatalogFile = getEnv("WARDEN_CATALOG_FILE", c.RBAC.CatalogFile)

	// Audit
	c.Audit.Sinks = getEnvList("WARDEN_AUDIT_SINKS", c.Audit.Sinks)
	c.Audit.WriteTimeout = getEnvDuration("WARDEN_AUDIT_WRITE_TIMEOUT", c.Audit.WriteTimeout)
	c.Audit.File.BasePath = getEnv("WARDEN_AUDIT_FILE_PATH", c.Audit.File.BasePath)
	c.Audit.File.Rotate = getEnvBool("WARDEN_AUDIT_FILE_ROTATE", c.Audit.File.Rotate)
	c.Audit.File.MaxSize = getEnvInt64("WARDEN_AUDIT_FILE_MAX_SIZE", c.Audit.File.MaxSize)
	c.Audit.File.MaxFiles = getEnvInt("WARDEN_AUDIT_FILE_MAX_FILES", c.Audit.File.MaxFiles)
	c.Audit.S3.Bucket = getEnv("WARDEN_AUDIT_S3_BUCKET", c.Audit.S3.Bucket)
	c.Audit.S3.Region = getEnv("WARDEN_AUDIT_S3_REGION", c.Audit.S3.Region)
	c.Audit.S3.Endpoint = getEnv("WARDEN_AUDIT_S3_ENDPOINT", c.Audit.S3.Endpoint)
	c.Audit.S3.Prefix = getEnv("WARDEN_AUDIT_S3_PREFIX", c.Audit.S3.Prefix)
	c.Audit.S3.AccessKey = getEnv("WARDEN_AUDIT_S3_ACCESS_KEY", c.Audit.S3.AccessKey)
	c.Audit.S3.SecretKey = getEnv("WARDEN_AUDIT_S3_SECRET_KEY", c.Audit.S3.SecretKey)
	c.Audit.S3.UsePathStyle = getEnvBool("WARDEN_AUDIT_S3_USE_PATH_STYLE", c.Audit.S3.UsePathStyle)

	// Observability
	c.Observability.LogLevel = getEnv("WARDEN_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("WARDEN_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("WARDEN_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("WARDEN_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("WARDEN_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("WARDEN_OTEL_INSECURE", c.Observability.OTelInsecure)
	c.Observability.OTelSampleRatio = getEnvFloat("WARDEN_OTEL_SAMPLE_RATIO", c.Observability.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	// Validate storage config based on driver
	switch c.Storage.Driver {
	case "postgres", "sqlite3":
		if c.Storage.URL == "" {
			return fmt.Errorf("store URL is required for the %s driver", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be postgres or sqlite3)", c.Storage.Driver)
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	switch c.Cache.Backend {
	case CacheBackendLRU:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
	case CacheBackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be lru or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Invitations.SweepEnabled {
		if _, err := cron.ParseStandard(c.Invitations.SweepSchedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", c.Invitations.SweepSchedule, err)
		}
	}

	if c.RBAC.MinLevel < 1 || c.RBAC.MinLevel > c.RBAC.MaxLevel {
		return fmt.Errorf("invalid role level range %d..%d", c.RBAC.MinLevel, c.RBAC.MaxLevel)
	}

	if len(c.Audit.Sinks) == 0 {
		return fmt.Errorf("at least one audit sink is required")
	}
	for _, sink := range c.Audit.Sinks {
		switch sink {
		case AuditSinkDB:
		case AuditSinkFile:
			if c.Audit.File.BasePath == "" {
				return fmt.Errorf("audit file path is required for the file sink")
			}
		case AuditSinkS3:
			if c.Audit.S3.Bucket == "" {
				return fmt.Errorf("audit S3 bucket is required for the s3 sink")
			}
		default:
			return fmt.Errorf("invalid audit sink: %s (must be db, file or s3)", sink)
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
