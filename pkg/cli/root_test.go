package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// fileOpener opens a fresh App per command over one SQLite file so state
// survives between commands the way it does against a real database
func fileOpener(t *testing.T) Opener {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.db")
	return func(ctx context.Context) (*app.App, error) {
		cfg := config.Default()
		cfg.Storage.Driver = "sqlite3"
		cfg.Storage.URL = "file:" + path + "?_foreign_keys=on"
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, app.WithLogger(observability.NewLogger(observability.ErrorLevel, io.Discard)))
	}
}

type harness struct {
	t    *testing.T
	open Opener
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, open: fileOpener(t)}
	h.mustRun("migrate", "-seed", "-actor", "owner-1")
	return h
}

// run builds a new tree per call; flag sets keep their values after Parse
func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	err := NewRootCommand(h.open, &out).Dispatch(args)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "wardenctl %v", args)
	return out
}

func (h *harness) decode(v interface{}, args ...string) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal([]byte(h.mustRun(args...)), v))
}

func (h *harness) role(name string) *rbac.Role {
	h.t.Helper()
	var role rbac.Role
	h.decode(&role, "role", "get", "-name", name, "-json")
	return &role
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand(nil, io.Discard)

	assert.Equal(t, "wardenctl", root.Name)
	assert.NotNil(t, root.Flags)

	expected := []string{"migrate", "role", "user", "invite", "check", "audit"}
	for _, name := range expected {
		assert.Contains(t, root.Subcommands, name)
	}
	assert.Len(t, root.Subcommands, len(expected))

	assert.Contains(t, root.Subcommands["invite"].Subcommands, "accept")
	assert.Contains(t, root.Subcommands["user"].Subcommands, "revoke")
	assert.Contains(t, root.Subcommands["audit"].Subcommands, "export")
}

func TestDispatch_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"help"}, {"-h"}, {"--help"}} {
		var out bytes.Buffer
		require.NoError(t, NewRootCommand(nil, &out).Dispatch(args))
		assert.Contains(t, out.String(), "Usage: wardenctl <command> [args]")
		assert.Contains(t, out.String(), "invite")
	}

	var out bytes.Buffer
	require.NoError(t, NewRootCommand(nil, &out).Dispatch([]string{"role"}))
	assert.Contains(t, out.String(), "Usage: role <command> [args]")
	assert.Contains(t, out.String(), "permissions")
}

func TestDispatch_UnknownCommand(t *testing.T) {
	err := NewRootCommand(nil, io.Discard).Dispatch([]string{"frobnicate"})
	require.Error(t, err)
	assert.Equal(t, "unknown command: frobnicate", err.Error())

	err = NewRootCommand(nil, io.Discard).Dispatch([]string{"role", "frobnicate"})
	require.Error(t, err)
}

func TestDispatch_RequiredFlags(t *testing.T) {
	opened := false
	open := func(context.Context) (*app.App, error) {
		opened = true
		return nil, errors.New("should not open")
	}

	cases := [][]string{
		{"role", "get"},
		{"role", "get", "-id", "a", "-name", "b"},
		{"user", "get"},
		{"user", "grant", "-id", "u"},
		{"invite", "accept", "-id", "i"},
		{"invite", "list", "-status", "bogus"},
		{"check", "-user", "u"},
		{"check", "-user", "u", "-permission", "a:b", "-level", "2"},
		{"audit", "list", "-severity", "LOUD"},
	}
	for _, args := range cases {
		err := NewRootCommand(open, io.Discard).Dispatch(args)
		assert.Error(t, err, "%v", args)
	}
	assert.False(t, opened)
}

func TestOpenerErrorIsReturned(t *testing.T) {
	open := func(context.Context) (*app.App, error) { return nil, errors.New("no database") }
	err := NewRootCommand(open, io.Discard).Dispatch([]string{"role", "list"})
	assert.EqualError(t, err, "no database")
}

func TestMigrate_Idempotent(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("migrate", "-seed")
	assert.Contains(t, out, "Migrations applied")
	assert.Contains(t, out, "Seeded 0 built-in roles")
}

func TestRoleCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("role", "list")
	for _, name := range []string{rbac.RoleOwner, rbac.RoleManager, rbac.RoleStaff, rbac.RoleViewer} {
		assert.Contains(t, out, name)
	}

	out = h.mustRun("role", "create", "-name", "Leasing Agent", "-level", "3",
		"-permissions", "leases:read,leases:create", "-custom")
	assert.Contains(t, out, "Role Leasing Agent")

	agent := h.role("Leasing Agent")
	assert.Equal(t, rbac.LevelStaff, agent.Level)
	assert.ElementsMatch(t, []string{"leases:read", "leases:create"}, agent.Permissions)
	assert.True(t, agent.CustomPermissionsAllowed)

	_, err := h.run("role", "create", "-name", "Leasing Agent", "-level", "3", "-permissions", "leases:read")
	assert.Error(t, err)

	_, err = h.run("role", "create", "-name", "Bogus", "-permissions", "spaceships:fly")
	assert.Error(t, err)

	h.mustRun("role", "update", "-id", agent.ID, "-description", "Shows units")
	updated := h.role("Leasing Agent")
	assert.Equal(t, "Shows units", updated.Description)
	assert.Equal(t, agent.Permissions, updated.Permissions)

	out = h.mustRun("role", "permissions")
	assert.Contains(t, out, "leases:read")

	h.mustRun("role", "delete", "-id", agent.ID)
	_, err = h.run("role", "get", "-id", agent.ID)
	assert.Error(t, err)
}

func TestUserAndCheckCommands(t *testing.T) {
	h := newHarness(t)
	staff := h.role(rbac.RoleStaff)
	viewer := h.role(rbac.RoleViewer)

	h.mustRun("user", "create", "-id", "user-1", "-email", "pat@example.com", "-role", staff.ID)

	out := h.mustRun("check", "-user", "user-1", "-permission", "maintenance:read")
	assert.Contains(t, out, "allowed: maintenance:read")

	out, err := h.run("check", "-user", "user-1", "-permission", "roles:delete")
	assert.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, out, "denied")

	h.mustRun("check", "-user", "user-1", "-level", "3")
	_, err = h.run("check", "-user", "user-1", "-level", "2")
	assert.ErrorIs(t, err, ErrDenied)

	h.mustRun("user", "assign", "-id", "user-1", "-role", viewer.ID)
	_, err = h.run("check", "-user", "user-1", "-permission", "maintenance:update")
	assert.ErrorIs(t, err, ErrDenied)

	h.mustRun("user", "status", "-id", "user-1", "-status", string(rbac.UserSuspended))
	_, err = h.run("check", "-user", "user-1", "-permission", "maintenance:read")
	assert.ErrorIs(t, err, ErrDenied)

	_, err = h.run("check", "-user", "nobody", "-permission", "maintenance:read")
	assert.ErrorIs(t, err, ErrDenied)

	var res rbac.Resolution
	h.decode(&res, "user", "get", "-id", "user-1", "-json")
	assert.Equal(t, "user-1", res.UserID)
	assert.Equal(t, rbac.UserSuspended, res.Status)
}

func TestInviteCommands(t *testing.T) {
	h := newHarness(t)
	staff := h.role(rbac.RoleStaff)

	var inv invitations.Invitation
	h.decode(&inv, "invite", "send", "-email", "New.Hire@Example.com", "-role", staff.ID, "-actor", "owner-1", "-json")
	assert.Equal(t, "new.hire@example.com", inv.Email)
	assert.Equal(t, invitations.StatusPending, inv.Status)

	_, err := h.run("invite", "send", "-email", "new.hire@example.com", "-role", staff.ID)
	assert.Error(t, err)

	out := h.mustRun("invite", "resend", "-id", inv.ID)
	assert.Contains(t, out, "status:  pending")

	out = h.mustRun("invite", "list", "-status", "pending")
	assert.Contains(t, out, inv.ID)

	out = h.mustRun("invite", "accept", "-id", inv.ID, "-user", "user-9")
	assert.Contains(t, out, "accepted by user-9")
	h.mustRun("check", "-user", "user-9", "-permission", "maintenance:read")

	_, err = h.run("invite", "cancel", "-id", inv.ID)
	assert.Error(t, err)

	other := h.mustRun("invite", "send", "-email", "second@example.com", "-role", staff.ID)
	assert.Contains(t, other, "second@example.com")

	var pending []*invitations.Invitation
	h.decode(&pending, "invite", "list", "-email", "second@example.com", "-json")
	require.Len(t, pending, 1)
	h.mustRun("invite", "cancel", "-id", pending[0].ID)

	out = h.mustRun("invite", "sweep")
	assert.Contains(t, out, "Expired 0 invitations")
}

func TestAuditCommands(t *testing.T) {
	h := newHarness(t)
	manager := h.role(rbac.RoleManager)
	h.mustRun("user", "create", "-id", "user-1", "-email", "pat@example.com", "-role", manager.ID)
	h.mustRun("user", "grant", "-id", "user-1", "-permissions", "leases:delete", "-actor", "owner-1")

	var page audit.Page
	h.decode(&page, "audit", "list", "-action", string(audit.ActionUserPermissionGrant), "-json")
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "owner-1", page.Entries[0].ActorUserID)
	assert.Equal(t, "user-1", page.Entries[0].EntityID)

	out := h.mustRun("audit", "list", "-entity-type", "role")
	assert.Contains(t, out, string(audit.ActionRoleCreate))
	assert.Contains(t, out, "of 4 entries")

	path := filepath.Join(t.TempDir(), "audit.csv")
	out = h.mustRun("audit", "export", "-format", "csv", "-out", path, "-entity-id", "user-1")
	assert.Contains(t, out, "Wrote")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), string(audit.ActionUserPermissionGrant))

	out = h.mustRun("audit", "export", "-format", "ndjson", "-actor", "owner-1")
	assert.Contains(t, out, `"actor_user_id":"owner-1"`)

	_, err = h.run("audit", "export", "-format", "xml")
	assert.Error(t, err)
}
