package rbac

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/warden/pkg/observability"
)

func TestPermissionMiddleware(t *testing.T) {
	f := newFixture(t)
	manager := f.role("Manager", LevelManager, false, "properties:read", "properties:update")
	viewer := f.role("Viewer", LevelViewer, false, "properties:read")
	f.user("m1", manager.ID)
	f.user("v1", viewer.ID)

	pm := NewPermissionMiddleware(f.authz, func(r *http.Request) string {
		return r.Header.Get("X-User-ID")
	})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router := mux.NewRouter()
	router.Handle("/properties", pm.RequirePermission("properties", "update")(ok)).Methods(http.MethodPut)
	router.Handle("/reports", pm.RequireAnyPermission("reports:read", "properties:read")(ok)).Methods(http.MethodGet)
	router.Handle("/settings", pm.RequireLevel(LevelManager)(ok)).Methods(http.MethodGet)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		want   int
	}{
		{"unauthenticated", http.MethodPut, "/properties", "", http.StatusUnauthorized},
		{"unknown user", http.MethodPut, "/properties", "ghost", http.StatusUnauthorized},
		{"manager can update", http.MethodPut, "/properties", "m1", http.StatusNoContent},
		{"viewer cannot update", http.MethodPut, "/properties", "v1", http.StatusForbidden},
		{"any permission", http.MethodGet, "/reports", "v1", http.StatusNoContent},
		{"level allowed", http.MethodGet, "/settings", "m1", http.StatusNoContent},
		{"level denied", http.MethodGet, "/settings", "v1", http.StatusForbidden},
		{"level unauthenticated", http.MethodGet, "/settings", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.user != "" {
				req.Header.Set("X-User-ID", tt.user)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("store outage", func(t *testing.T) {
		f.store.FailWith(errors.New("db down"))
		defer f.store.FailWith(nil)

		req := httptest.NewRequest(http.MethodPut, "/properties", nil)
		req.Header.Set("X-User-ID", "cold-user")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"error":"Permission check failed"}`, rec.Body.String())
	})
}

func TestPrincipalFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, PrincipalFromContext(req))

	req = req.WithContext(observability.WithUserID(req.Context(), "u1"))
	assert.Equal(t, "u1", PrincipalFromContext(req))
}
