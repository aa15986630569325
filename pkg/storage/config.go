package storage

import (
	"context"
	"time"
)

// Config for the persistence backends
type Config struct {
	// Driver is "postgres" or "sqlite3"
	Driver string `yaml:"driver"`

	// SQL config
	URL         string        `yaml:"url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"` // bound on every store call
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	// ReplicaCheckInterval is how often wardend prunes unreachable replicas
	ReplicaCheckInterval time.Duration `yaml:"replica_check_interval"`

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:               "postgres",
		MaxConns:             20,
		MinConns:             2,
		Timeout:              5 * time.Second,
		MaxLifetime:          30 * time.Minute,
		MaxIdleTime:          5 * time.Minute,
		ReplicaCheckInterval: 30 * time.Second,
		RedisDB:              0,
		RedisMaxRetries:      3,
		RedisPoolSize:        10,
	}
}

// WithTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
