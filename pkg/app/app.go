// Package app assembles the IAM components from configuration. The daemon
// and the CLI both build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage/postgres"
)

// sweepLockKey is shared by every daemon pointed at the same Redis
const sweepLockKey = "warden:lock:invitation-sweep"

// App holds the wired components
type App struct {
	Config  *config.Config
	Logger  *observability.Logger
	Metrics *observability.Metrics

	DB    *sql.DB
	Redis *redis.Client // nil unless a Redis URL is configured

	Catalog     *rbac.Catalog
	Store       *rbac.Store
	Cache       *rbac.PermissionCache
	Authorizer  *rbac.Authorizer
	Roles       *rbac.RoleService
	Users       *rbac.UserService
	Invitations *invitations.Workflow

	Recorder *audit.Recorder
	AuditLog audit.Store // nil unless the db sink is enabled

	conns *postgres.ConnectionManager
	sink  audit.Sink
}

type options struct {
	registry prometheus.Registerer
	logger   *observability.Logger
}

// Option configures New
type Option func(*options)

// WithRegistry registers metrics on r instead of leaving them unregistered
func WithRegistry(r prometheus.Registerer) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New connects to the store (and Redis when configured) and wires every
// component. Migrations are not applied; call Migrate.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config: cfg,
		Logger: observability.OrNop(o.logger),
	}
	if o.registry != nil {
		a.Metrics = observability.NewMetrics(o.registry)
	} else {
		a.Metrics = observability.NewUnregisteredMetrics()
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.conns, err = postgres.NewConnectionManager(cfg.Storage, a.Logger)
	if err != nil {
		return nil, err
	}
	a.DB = a.conns.Primary()

	if cfg.Storage.RedisURL != "" {
		a.Redis, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	a.Catalog, err = loadCatalog(cfg.RBAC.CatalogFile)
	if err != nil {
		return nil, err
	}

	if err := a.wireAudit(ctx); err != nil {
		return nil, err
	}

	backend, err := a.cacheBackend()
	if err != nil {
		return nil, err
	}

	a.Store = rbac.NewStore(a.DB, rbac.WithStoreTimeout(cfg.Storage.Timeout), rbac.WithStoreMetrics(a.Metrics))
	a.Cache = rbac.NewPermissionCache(backend, a.Store, a.Store,
		rbac.WithCacheTTL(cfg.Cache.TTL),
		rbac.WithCacheLogger(a.Logger),
		rbac.WithCacheMetrics(a.Metrics),
	)
	a.Authorizer = rbac.NewAuthorizer(a.Cache,
		rbac.WithAuthorizerLogger(a.Logger),
		rbac.WithAuthorizerMetrics(a.Metrics),
	)

	serviceOpts := []rbac.ServiceOption{
		rbac.WithLevelRange(cfg.RBAC.LevelRange()),
		rbac.WithLogger(a.Logger),
	}
	a.Roles = rbac.NewRoleService(a.Store, a.Store, a.Catalog, a.Cache, a.Recorder, serviceOpts...)
	a.Users = rbac.NewUserService(a.Store, a.Store, a.Catalog, a.Cache, a.Recorder, serviceOpts...)

	invitationStore := invitations.NewStore(a.DB,
		invitations.WithStoreTimeout(cfg.Storage.Timeout),
		invitations.WithStoreMetrics(a.Metrics),
	)
	a.Invitations = invitations.NewWorkflow(invitationStore, a.Store, a.Store, a.Cache, a.Recorder,
		invitations.WithTTL(cfg.Invitations.TTL),
		invitations.WithLogger(a.Logger),
		invitations.WithMetrics(a.Metrics),
	)

	return a, nil
}

func loadCatalog(path string) (*rbac.Catalog, error) {
	if path == "" {
		return rbac.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return rbac.LoadCatalog(f)
}

func (a *App) cacheBackend() (rbac.CacheBackend, error) {
	switch a.Config.Cache.Backend {
	case config.CacheBackendRedis:
		if a.Redis == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis URL")
		}
		return rbac.NewRedisCacheBackend(a.Redis, a.Config.Cache.Prefix, nil), nil
	default:
		return rbac.NewLRUCacheBackend(a.Config.Cache.Size, nil)
	}
}

// wireAudit builds the configured sinks and the recorder in front of them
func (a *App) wireAudit(ctx context.Context) error {
	cfg := a.Config.Audit
	var sinks []audit.Sink

	for _, name := range cfg.Sinks {
		switch name {
		case config.AuditSinkDB:
			db, err := audit.NewDBLogger(a.DB, cfg.WriteTimeout, audit.WithReader(a.conns.Replica))
			if err != nil {
				return err
			}
			a.AuditLog = db
			sinks = append(sinks, db)
		case config.AuditSinkFile:
			file, err := audit.NewFileLogger(cfg.File)
			if err != nil {
				return err
			}
			sinks = append(sinks, file)
		case config.AuditSinkS3:
			s3, err := audit.NewS3Sink(ctx, cfg.S3)
			if err != nil {
				return err
			}
			sinks = append(sinks, s3)
		default:
			return fmt.Errorf("unknown audit sink %q", name)
		}
	}

	switch len(sinks) {
	case 0:
		return fmt.Errorf("no audit sink configured")
	case 1:
		a.sink = sinks[0]
	default:
		a.sink = audit.NewMultiLogger(sinks...)
	}

	a.Recorder = audit.NewRecorder(a.sink,
		audit.WithLogger(a.Logger),
		audit.WithMetrics(a.Metrics),
		audit.WithWriteTimeout(cfg.WriteTimeout),
	)
	return nil
}

// Migrate applies the role, user and invitation schema migrations. The
// audit table is created when the db sink opens.
func (a *App) Migrate(ctx context.Context) error {
	if err := rbac.RunMigrations(ctx, a.DB, a.Logger); err != nil {
		return err
	}
	return invitations.RunMigrations(ctx, a.DB, a.Logger)
}

// NewSweeper builds the invitation expiry sweeper. With Redis configured
// runs are serialized across daemons.
func (a *App) NewSweeper() (*invitations.Sweeper, error) {
	opts := []invitations.SweeperOption{invitations.WithSweepLogger(a.Logger)}
	if a.Redis != nil && a.Config.Invitations.SweepLockTTL > 0 {
		opts = append(opts, invitations.WithLocker(
			invitations.RedisLocker(a.Redis, sweepLockKey, a.Config.Invitations.SweepLockTTL),
		))
	}
	return invitations.NewSweeper(a.Invitations, a.Config.Invitations.SweepSchedule, opts...)
}

// WatchReplicas prunes unreachable read replicas until ctx is done. Without
// replicas configured it does nothing.
func (a *App) WatchReplicas(ctx context.Context) {
	if len(a.Config.Storage.ReplicaURLs) == 0 {
		return
	}
	a.conns.StartHealthCheckRoutine(ctx, a.Config.Storage.ReplicaCheckInterval)
}

// HealthChecker reports on the store and Redis
func (a *App) HealthChecker(version string) *observability.HealthChecker {
	return observability.NewHealthChecker(a.DB, a.Redis, version)
}

// Close releases the audit sinks, Redis and the database
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.Recorder != nil {
		keep(a.Recorder.Close())
	} else if a.sink != nil {
		keep(a.sink.Close())
	}
	if a.Redis != nil {
		keep(a.Redis.Close())
	}
	if a.conns != nil {
		keep(a.conns.Close())
	}
	return firstErr
}
