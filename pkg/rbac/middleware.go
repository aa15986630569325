package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
)

// PrincipalFunc extracts the authenticated user id from a request. An empty
// id means the request is unauthenticated.
type PrincipalFunc func(r *http.Request) string

// PrincipalFromContext reads the user id placed on the request context by
// the authentication layer
func PrincipalFromContext(r *http.Request) string {
	return observability.GetUserID(r.Context())
}

// PermissionMiddleware guards handlers with authorization decisions
type PermissionMiddleware struct {
	authz     *Authorizer
	principal PrincipalFunc
}

// NewPermissionMiddleware creates a middleware factory; a nil principal
// func reads the user id from the request context.
func NewPermissionMiddleware(authz *Authorizer, principal PrincipalFunc) *PermissionMiddleware {
	if principal == nil {
		principal = PrincipalFromContext
	}
	return &PermissionMiddleware{authz: authz, principal: principal}
}

// RequirePermission admits requests whose user holds resource:action
func (pm *PermissionMiddleware) RequirePermission(resource, action string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := pm.principal(r)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			decision := pm.authz.Authorize(r.Context(), userID, resource, action)
			if !decision.Allowed {
				writeDenial(w, decision.Reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission admits requests whose user holds one of permissions
func (pm *PermissionMiddleware) RequireAnyPermission(permissions ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := pm.principal(r)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			if !pm.authz.HasAnyPermission(r.Context(), userID, permissions...) {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireLevel admits requests whose user's role is at least required
func (pm *PermissionMiddleware) RequireLevel(required RoleLevel) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := pm.principal(r)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			if !pm.authz.RoleLevelAtLeast(r.Context(), userID, required) {
				http.Error(w, "Insufficient role level", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeDenial(w http.ResponseWriter, reason Reason) {
	switch reason {
	case ReasonUserNotFound:
		httputil.WriteUnauthorized(w, "Authentication required")
	case ReasonStoreUnavailable:
		httputil.WriteServiceUnavailable(w, "Permission check failed")
	default:
		httputil.WriteForbidden(w, "Insufficient permissions")
	}
}
