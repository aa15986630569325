package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleLevel_AtLeast(t *testing.T) {
	tests := []struct {
		level    RoleLevel
		required RoleLevel
		want     bool
	}{
		{LevelOwner, LevelManager, true},
		{LevelManager, LevelManager, true},
		{LevelStaff, LevelManager, false},
		{LevelViewer, LevelManager, false},
		{LevelOwner, LevelOwner, true},
		{LevelViewer, LevelViewer, true},
	}

	for _, tt := range tests {
		t.Run(tt.level.String()+"_vs_"+tt.required.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.AtLeast(tt.required))
		})
	}
}

func TestLevelRange_Contains(t *testing.T) {
	r := DefaultLevelRange()
	assert.False(t, r.Contains(0))
	assert.True(t, r.Contains(LevelOwner))
	assert.True(t, r.Contains(LevelViewer))
	assert.False(t, r.Contains(5))

	narrow := LevelRange{Min: 2, Max: 3}
	assert.False(t, narrow.Contains(LevelOwner))
	assert.True(t, narrow.Contains(LevelStaff))
}

func TestNormalizePermissions(t *testing.T) {
	got := normalizePermissions([]string{"units:read", "properties:read", "units:read"})
	assert.Equal(t, []string{"properties:read", "units:read"}, got)
	assert.Equal(t, []string{}, normalizePermissions(nil))
}

func TestDiffPermissions(t *testing.T) {
	added, removed := diffPermissions(
		[]string{"a:read", "b:read"},
		[]string{"b:read", "c:read"},
	)
	assert.Equal(t, []string{"c:read"}, added)
	assert.Equal(t, []string{"a:read"}, removed)

	added, removed = diffPermissions(nil, nil)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestRole_HasPermission(t *testing.T) {
	role := &Role{Permissions: normalizePermissions([]string{"leases:read", "leases:renew"})}
	assert.True(t, role.HasPermission("leases:renew"))
	assert.False(t, role.HasPermission("leases:delete"))
}

func TestEffectivePermissions(t *testing.T) {
	role := &Role{Permissions: []string{"properties:read"}}
	user := &User{CustomPermissions: []string{"reports:export", "properties:read"}}

	assert.Equal(t, []string{"properties:read"}, EffectivePermissions(role, user))

	role.CustomPermissionsAllowed = true
	assert.Equal(t, []string{"properties:read", "reports:export"}, EffectivePermissions(role, user))

	assert.Empty(t, EffectivePermissions(nil, user))
}

func TestBuiltInRoles(t *testing.T) {
	catalog := DefaultCatalog()
	roles := BuiltInRoles(catalog)
	assert.Len(t, roles, 4)

	byName := make(map[string]CreateRoleRequest)
	for _, r := range roles {
		assert.NoError(t, catalog.Validate(r.Permissions), r.Name)
		byName[r.Name] = r
	}

	assert.Len(t, byName[RoleOwner].Permissions, len(catalog.List()))
	assert.NotContains(t, byName[RoleManager].Permissions, "properties:delete")
	assert.Contains(t, byName[RoleManager].Permissions, "properties:update")
	assert.NotContains(t, byName[RoleViewer].Permissions, "properties:update")
	assert.Contains(t, byName[RoleViewer].Permissions, "properties:read")
}
