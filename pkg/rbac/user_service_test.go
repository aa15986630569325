package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice@example.com", "alice@example.com", true},
		{"  Alice@Example.COM ", "alice@example.com", true},
		{"", "", false},
		{"alice", "", false},
		{"Alice <alice@example.com>", "", false},
		{"a@b@c", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateEmail("test", tt.in)
			if !tt.ok {
				assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserService_CreateUser(t *testing.T) {
	f := newFixture(t)
	staff := f.role("Staff", LevelStaff, false)

	user, err := f.users.CreateUser(f.ctx, testActor, CreateUserRequest{
		Email:       "New.Hire@Example.com",
		RoleID:      staff.ID,
		Preferences: map[string]string{"theme": "dark"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "new.hire@example.com", user.Email)
	assert.Equal(t, UserActive, user.Status)

	entries := f.entries(audit.ActionUserCreate)
	require.Len(t, entries, 1)
	assert.Equal(t, user.ID, entries[0].EntityID)
	assert.Equal(t, audit.EntityUser, entries[0].EntityType)
	assert.Equal(t, "new.hire@example.com", entries[0].Details["email"])
	assert.Equal(t, int(LevelStaff), entries[0].Details["level"])

	_, err = f.users.CreateUser(f.ctx, testActor, CreateUserRequest{Email: "new.hire@example.com", RoleID: staff.ID})
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyExists), "got %v", err)

	_, err = f.users.CreateUser(f.ctx, testActor, CreateUserRequest{Email: "x@example.com", RoleID: "missing"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "got %v", err)

	_, err = f.users.CreateUser(f.ctx, testActor, CreateUserRequest{Email: "x@example.com", RoleID: staff.ID, Status: "retired"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput), "got %v", err)

	assert.Len(t, f.entries(audit.ActionUserCreate), 1)
}

func TestUserService_AssignRole(t *testing.T) {
	f := newFixture(t)
	manager := f.role("Manager", LevelManager, false, "properties:update")
	staff := f.role("Staff", LevelStaff, false, "units:read")
	f.user("u1", staff.ID)

	assert.False(t, f.authz.Authorize(f.ctx, "u1", "properties", "update").Allowed)

	user, err := f.users.AssignRole(f.ctx, testActor, "u1", manager.ID)
	require.NoError(t, err)
	assert.Equal(t, manager.ID, user.RoleID)
	assert.True(t, f.authz.Authorize(f.ctx, "u1", "properties", "update").Allowed)

	_, err = f.users.AssignRole(f.ctx, testActor, "u1", staff.ID)
	require.NoError(t, err)

	changes := f.entries(audit.ActionUserRoleChange)
	require.Len(t, changes, 2)
	assert.Equal(t, audit.SeverityWarning, changes[0].Severity)
	assert.Equal(t, staff.ID, changes[0].Details["from_role_id"])
	assert.Equal(t, manager.ID, changes[0].Details["to_role_id"])
	assert.Equal(t, int(LevelStaff), changes[0].Details["from_level"])
	assert.Equal(t, int(LevelManager), changes[0].Details["to_level"])
	assert.Equal(t, audit.SeverityInfo, changes[1].Severity)

	// same role is a no-op
	_, err = f.users.AssignRole(f.ctx, testActor, "u1", staff.ID)
	require.NoError(t, err)
	assert.Len(t, f.entries(audit.ActionUserRoleChange), 2)

	_, err = f.users.AssignRole(f.ctx, testActor, "u1", "missing")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	_, err = f.users.AssignRole(f.ctx, testActor, "ghost", staff.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestUserService_SetStatus(t *testing.T) {
	f := newFixture(t)
	staff := f.role("Staff", LevelStaff, false, "units:read")
	f.user("u1", staff.ID)

	assert.True(t, f.authz.Authorize(f.ctx, "u1", "units", "read").Allowed)

	user, err := f.users.SetStatus(f.ctx, testActor, "u1", UserSuspended)
	require.NoError(t, err)
	assert.Equal(t, UserSuspended, user.Status)

	d := f.authz.Authorize(f.ctx, "u1", "units", "read")
	assert.Equal(t, ReasonUserInactive, d.Reason)

	_, err = f.users.SetStatus(f.ctx, testActor, "u1", UserActive)
	require.NoError(t, err)
	assert.True(t, f.authz.Authorize(f.ctx, "u1", "units", "read").Allowed)

	changes := f.entries(audit.ActionUserStatusChange)
	require.Len(t, changes, 2)
	assert.Equal(t, audit.SeverityWarning, changes[0].Severity)
	assert.Equal(t, "active", changes[0].Details["from"])
	assert.Equal(t, "suspended", changes[0].Details["to"])
	assert.Equal(t, audit.SeverityInfo, changes[1].Severity)

	_, err = f.users.SetStatus(f.ctx, testActor, "u1", UserActive)
	require.NoError(t, err)
	assert.Len(t, f.entries(audit.ActionUserStatusChange), 2)

	_, err = f.users.SetStatus(f.ctx, testActor, "u1", "banished")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))
}

func TestUserService_CustomPermissions(t *testing.T) {
	f := newFixture(t)
	flexible := f.role("Flexible", LevelManager, true, "units:read")
	f.user("u1", flexible.ID)

	_, err := f.users.GrantCustomPermissions(f.ctx, testActor, "u1", nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))

	_, err = f.users.GrantCustomPermissions(f.ctx, testActor, "u1", []string{"reports:forge"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidPermission))

	user, err := f.users.GrantCustomPermissions(f.ctx, testActor, "u1", []string{"reports:export", "leases:renew"})
	require.NoError(t, err)
	assert.Equal(t, []string{"leases:renew", "reports:export"}, user.CustomPermissions)
	assert.True(t, f.authz.HasAllPermissions(f.ctx, "u1", "units:read", "reports:export", "leases:renew"))

	grants := f.entries(audit.ActionUserPermissionGrant)
	require.Len(t, grants, 1)
	assert.Equal(t, audit.SeverityWarning, grants[0].Severity)
	assert.Equal(t, []string{"leases:renew", "reports:export"}, grants[0].Details["granted"])

	// already held
	_, err = f.users.GrantCustomPermissions(f.ctx, testActor, "u1", []string{"reports:export"})
	require.NoError(t, err)
	assert.Len(t, f.entries(audit.ActionUserPermissionGrant), 1)

	user, err = f.users.RevokeCustomPermissions(f.ctx, testActor, "u1", []string{"reports:export", "settings:update"})
	require.NoError(t, err)
	assert.Equal(t, []string{"leases:renew"}, user.CustomPermissions)
	assert.False(t, f.authz.Authorize(f.ctx, "u1", "reports", "export").Allowed)

	revokes := f.entries(audit.ActionUserPermissionRevoke)
	require.Len(t, revokes, 1)
	assert.Equal(t, []string{"reports:export"}, revokes[0].Details["revoked"])
	assert.Equal(t, []string{"leases:renew"}, revokes[0].Details["permissions"])

	_, err = f.users.RevokeCustomPermissions(f.ctx, testActor, "u1", []string{"settings:update"})
	require.NoError(t, err)
	assert.Len(t, f.entries(audit.ActionUserPermissionRevoke), 1)
}
