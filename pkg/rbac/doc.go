// Package rbac is the role-based access control core: the permission
// catalog, role and user persistence, the permission cache and the
// authorization engine.
//
// # Model
//
// A permission is a resource:action string such as "properties:delete".
// The Catalog lists every permission that may be granted; roles may only
// reference catalog entries. A Role bundles permissions at a RoleLevel,
// where 1 (Owner) is the most privileged and 4 (Viewer) the least:
//
//	LevelOwner.AtLeast(LevelManager)  // true
//	LevelStaff.AtLeast(LevelManager)  // false
//
// A user's effective permissions are its role's permissions plus its custom
// grants, the latter only when the role sets CustomPermissionsAllowed.
//
// # Read path
//
// Authorizer answers Authorize, HasAnyPermission, HasAllPermissions and
// RoleLevelAtLeast from a PermissionCache. The cache resolves a user once
// per TTL (five minutes by default) from the RoleRepository and
// UserDirectory. Concurrent misses share one load, and a load that overlaps
// an invalidation is never stored. Lookups that fail deny with
// ReasonStoreUnavailable.
//
//	cache := rbac.NewPermissionCache(backend, store, store)
//	authz := rbac.NewAuthorizer(cache)
//	if d := authz.Authorize(ctx, userID, "leases", "renew"); !d.Allowed {
//		return d.Reason
//	}
//
// PermissionMiddleware wraps the Authorizer as gorilla/mux middleware for
// applications that embed this package in their own HTTP handlers; wardend
// serves only ops routes and does not mount it.
//
// # Write path
//
// RoleService and UserService validate input, persist the change, then
// invalidate the affected cache entries and record an audit entry before
// returning. An update that changes nothing is not audited.
//
// # Storage
//
// Store implements RoleRepository and UserDirectory over database/sql and
// runs on PostgreSQL and SQLite. MemoryStore is the in-process variant.
// Cache backends are LRUCacheBackend (per process) and RedisCacheBackend
// (shared between replicas).
package rbac
