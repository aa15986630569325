package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/clock"
	"github.com/platinummonkey/warden/pkg/observability"
)

var testEpoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

const testActor = "actor-owner"

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    *clock.Fake
	store    *MemoryStore
	catalog  *Catalog
	backend  *LRUCacheBackend
	cache    *PermissionCache
	authz    *Authorizer
	roles    *RoleService
	users    *UserService
	auditLog *audit.MemoryStore
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    clock.NewFake(testEpoch),
		store:    NewMemoryStore(),
		catalog:  DefaultCatalog(),
		auditLog: audit.NewMemoryStore(),
		metrics:  observability.NewUnregisteredMetrics(),
	}

	backend, err := NewLRUCacheBackend(100, f.clock)
	require.NoError(t, err)
	f.backend = backend

	f.cache = NewPermissionCache(backend, f.store, f.store, WithCacheClock(f.clock), WithCacheMetrics(f.metrics))
	f.authz = NewAuthorizer(f.cache, WithAuthorizerMetrics(f.metrics))

	recorder := audit.NewRecorder(f.auditLog, audit.WithClock(f.clock))
	f.roles = NewRoleService(f.store, f.store, f.catalog, f.cache, recorder, WithClock(f.clock))
	f.users = NewUserService(f.store, f.store, f.catalog, f.cache, recorder, WithClock(f.clock))
	return f
}

func (f *fixture) role(name string, level RoleLevel, custom bool, perms ...string) *Role {
	f.t.Helper()
	role, err := f.roles.Create(f.ctx, testActor, CreateRoleRequest{
		Name:                     name,
		Level:                    level,
		Permissions:              perms,
		CustomPermissionsAllowed: custom,
	})
	require.NoError(f.t, err)
	return role
}

func (f *fixture) user(id, roleID string) *User {
	f.t.Helper()
	user, err := f.users.CreateUser(f.ctx, testActor, CreateUserRequest{
		ID:     id,
		Email:  id + "@example.com",
		RoleID: roleID,
	})
	require.NoError(f.t, err)
	return user
}

// entries returns the recorded audit entries with the given action
func (f *fixture) entries(action audit.Action) []*audit.Entry {
	var out []*audit.Entry
	for _, e := range f.auditLog.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
