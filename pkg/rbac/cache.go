package rbac

import (
	"context"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/clock"
	"github.com/platinummonkey/warden/pkg/observability"
)

// DefaultCacheTTL bounds how long a resolution may be served without a reload
const DefaultCacheTTL = 5 * time.Minute

// Resolution is a user's effective access as of ResolvedAt. Values handed
// out by the cache are shared and must not be modified.
type Resolution struct {
	UserID      string     `json:"user_id"`
	Role        *Role      `json:"role,omitempty"` // nil when the assigned role no longer exists
	Status      UserStatus `json:"status"`
	Permissions []string   `json:"permissions"` // sorted
	ResolvedAt  time.Time  `json:"resolved_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// Has reports whether the resolved set contains permission
func (r *Resolution) Has(permission string) bool {
	i := sort.SearchStrings(r.Permissions, permission)
	return i < len(r.Permissions) && r.Permissions[i] == permission
}

// Active reports whether the user may be granted anything at all
func (r *Resolution) Active() bool {
	return r.Status == UserActive
}

// RoleID returns the id of the resolved role, empty when dangling
func (r *Resolution) RoleID() string {
	if r.Role == nil {
		return ""
	}
	return r.Role.ID
}

// EffectivePermissions is the role's permissions plus the user's custom
// grants when the role allows them.
func EffectivePermissions(role *Role, user *User) []string {
	if role == nil {
		return []string{}
	}
	perms := append([]string(nil), role.Permissions...)
	if role.CustomPermissionsAllowed {
		perms = append(perms, user.CustomPermissions...)
	}
	return normalizePermissions(perms)
}

// CacheBackend stores resolutions. Every invalidation advances a generation
// counter atomically with the delete; SetIfGeneration stores only when the
// generation still matches, so a load that raced an invalidation is dropped.
type CacheBackend interface {
	Get(ctx context.Context, userID string) (*Resolution, bool, error)
	Generation(ctx context.Context) (uint64, error)
	SetIfGeneration(ctx context.Context, res *Resolution, generation uint64) (bool, error)
	Delete(ctx context.Context, userID string) error
	DeleteByRole(ctx context.Context, roleID string) error
	Clear(ctx context.Context) error
}

// Invalidator is the part of the cache that mutations depend on
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
	InvalidateByRole(ctx context.Context, roleID string) error
}

// PermissionCache resolves and caches effective permissions per user
type PermissionCache struct {
	backend CacheBackend
	roles   RoleRepository
	users   UserDirectory
	ttl     time.Duration
	clock   clock.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

// CacheOption configures a PermissionCache
type CacheOption func(*PermissionCache)

// WithCacheTTL sets the entry lifetime
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *PermissionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock sets the time source for expiry
func WithCacheClock(clk clock.Clock) CacheOption {
	return func(c *PermissionCache) { c.clock = clock.OrReal(clk) }
}

// WithCacheLogger sets the logger
func WithCacheLogger(l *observability.Logger) CacheOption {
	return func(c *PermissionCache) { c.logger = observability.OrNop(l) }
}

// WithCacheMetrics sets the metrics the cache reports to
func WithCacheMetrics(m *observability.Metrics) CacheOption {
	return func(c *PermissionCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewPermissionCache creates a cache over backend, loading misses from the
// role repository and user directory.
func NewPermissionCache(backend CacheBackend, roles RoleRepository, users UserDirectory, opts ...CacheOption) *PermissionCache {
	c := &PermissionCache{
		backend: backend,
		roles:   roles,
		users:   users,
		ttl:     DefaultCacheTTL,
		clock:   clock.Real{},
		logger:  observability.NewNopLogger(),
		metrics: observability.NewUnregisteredMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime
func (c *PermissionCache) TTL() time.Duration {
	return c.ttl
}

// Resolve returns the user's effective access, from cache when fresh.
// Concurrent misses for the same user share one load. Lookup failures are
// returned and never cached.
func (c *PermissionCache) Resolve(ctx context.Context, userID string) (res *Resolution, err error) {
	ctx, span := observability.StartSpan(ctx, "rbac.PermissionCache.Resolve", "user.id", userID)
	defer func() { observability.EndSpan(span, err) }()

	if cached, ok, err := c.backend.Get(ctx, userID); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("permission cache read failed")
	} else if ok && c.clock.Now().Before(cached.ExpiresAt) {
		c.metrics.CacheHitsTotal.Inc()
		return cached, nil
	}
	c.metrics.CacheMissesTotal.Inc()

	generation, genErr := c.backend.Generation(ctx)
	if genErr != nil {
		c.logger.WithError(genErr).Warn("permission cache generation unavailable; result will not be cached")
	}

	key := userID + ":" + strconv.FormatUint(generation, 10)
	if genErr != nil {
		key = userID + ":uncached"
	}

	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		res, err := c.load(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		if genErr == nil {
			if _, err := c.backend.SetIfGeneration(loadCtx, res, generation); err != nil {
				c.logger.WithError(err).WithField("user_id", userID).Warn("permission cache write failed")
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Resolution), nil
}

func (c *PermissionCache) load(ctx context.Context, userID string) (*Resolution, error) {
	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	role, err := c.roles.GetRole(ctx, user.RoleID)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, err
		}
		c.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"role_id": user.RoleID,
		}).Warn("user references a missing role")
		role = nil
	}

	now := c.clock.Now().UTC()
	return &Resolution{
		UserID:      user.ID,
		Role:        role,
		Status:      user.Status,
		Permissions: EffectivePermissions(role, user),
		ResolvedAt:  now,
		ExpiresAt:   now.Add(c.ttl),
	}, nil
}

// Invalidate drops the cached resolution for userID
func (c *PermissionCache) Invalidate(ctx context.Context, userID string) error {
	c.metrics.CacheInvalidationsTotal.WithLabelValues("user").Inc()
	if err := c.backend.Delete(ctx, userID); err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "rbac.PermissionCache.Invalidate", err, "failed to invalidate user "+userID)
	}
	return nil
}

// InvalidateByRole drops every cached resolution that carries roleID
func (c *PermissionCache) InvalidateByRole(ctx context.Context, roleID string) error {
	c.metrics.CacheInvalidationsTotal.WithLabelValues("role").Inc()
	if err := c.backend.DeleteByRole(ctx, roleID); err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "rbac.PermissionCache.InvalidateByRole", err, "failed to invalidate role "+roleID)
	}
	return nil
}

// Clear drops every cached resolution
func (c *PermissionCache) Clear(ctx context.Context) error {
	c.metrics.CacheInvalidationsTotal.WithLabelValues("all").Inc()
	if err := c.backend.Clear(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "rbac.PermissionCache.Clear", err, "failed to clear permission cache")
	}
	return nil
}
