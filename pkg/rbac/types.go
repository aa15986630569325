package rbac

import (
	"sort"
	"time"
)

// Permission is a single resource:action grant from the catalog
type Permission struct {
	Name        string `json:"name" yaml:"name"` // resource:action
	Resource    string `json:"resource" yaml:"resource"`
	Action      string `json:"action" yaml:"action"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// PermissionName joins a resource and an action
func PermissionName(resource, action string) string {
	return resource + ":" + action
}

// RoleLevel ranks roles. Lower numbers carry more privilege.
type RoleLevel int

const (
	LevelOwner   RoleLevel = 1
	LevelManager RoleLevel = 2
	LevelStaff   RoleLevel = 3
	LevelViewer  RoleLevel = 4
)

// AtLeast reports whether l is as privileged as required or more
func (l RoleLevel) AtLeast(required RoleLevel) bool {
	return l <= required
}

// String returns the built-in label for known levels
func (l RoleLevel) String() string {
	switch l {
	case LevelOwner:
		return "owner"
	case LevelManager:
		return "manager"
	case LevelStaff:
		return "staff"
	case LevelViewer:
		return "viewer"
	}
	return "custom"
}

// LevelRange is the inclusive range of levels roles may use
type LevelRange struct {
	Min RoleLevel
	Max RoleLevel
}

// DefaultLevelRange covers the four built-in levels
func DefaultLevelRange() LevelRange {
	return LevelRange{Min: LevelOwner, Max: LevelViewer}
}

// Contains reports whether l falls inside the range
func (r LevelRange) Contains(l RoleLevel) bool {
	return l >= r.Min && l <= r.Max
}

// Role is a named bundle of permissions at a privilege level
type Role struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	Level                    RoleLevel `json:"level"`
	Permissions              []string  `json:"permissions"`
	CustomPermissionsAllowed bool      `json:"custom_permissions_allowed"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
	CreatedBy                string    `json:"created_by,omitempty"`
}

// HasPermission reports whether the role grants name
func (r *Role) HasPermission(name string) bool {
	i := sort.SearchStrings(r.Permissions, name)
	return i < len(r.Permissions) && r.Permissions[i] == name
}

// Clone returns a deep copy
func (r *Role) Clone() *Role {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	return &cp
}

// UserStatus is the lifecycle state of an account
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserPending   UserStatus = "pending"
	UserSuspended UserStatus = "suspended"
)

// Valid reports whether s is a known status
func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserInactive, UserPending, UserSuspended:
		return true
	}
	return false
}

// User is an account as seen by the IAM core
type User struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	RoleID            string            `json:"role_id"`
	Status            UserStatus        `json:"status"`
	CustomPermissions []string          `json:"custom_permissions,omitempty"`
	Preferences       map[string]string `json:"preferences,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Clone returns a deep copy
func (u *User) Clone() *User {
	cp := *u
	cp.CustomPermissions = append([]string(nil), u.CustomPermissions...)
	if u.Preferences != nil {
		cp.Preferences = make(map[string]string, len(u.Preferences))
		for k, v := range u.Preferences {
			cp.Preferences[k] = v
		}
	}
	return &cp
}

// CreateRoleRequest holds the fields for a new role
type CreateRoleRequest struct {
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	Level                    RoleLevel `json:"level"`
	Permissions              []string  `json:"permissions"`
	CustomPermissionsAllowed bool      `json:"custom_permissions_allowed"`
}

// RoleUpdate is a partial update; nil fields are left unchanged
type RoleUpdate struct {
	Name                     *string    `json:"name,omitempty"`
	Description              *string    `json:"description,omitempty"`
	Level                    *RoleLevel `json:"level,omitempty"`
	Permissions              *[]string  `json:"permissions,omitempty"`
	CustomPermissionsAllowed *bool      `json:"custom_permissions_allowed,omitempty"`
}

// RoleFilter narrows ListRoles
type RoleFilter struct {
	NameContains string
	Level        RoleLevel // zero means any
	Limit        int
	Offset       int
}

// CreateUserRequest holds the fields for a new user
type CreateUserRequest struct {
	ID          string // optional; generated when empty
	Email       string
	RoleID      string
	Status      UserStatus
	Preferences map[string]string
}

// Built-in role names
const (
	RoleOwner   = "Owner"
	RoleManager = "Manager"
	RoleStaff   = "Staff"
	RoleViewer  = "Viewer"
)

// BuiltInRoles returns the default role definitions seeded at startup
func BuiltInRoles(catalog *Catalog) []CreateRoleRequest {
	all := make([]string, 0)
	for _, p := range catalog.List() {
		all = append(all, p.Name)
	}

	pick := func(include func(resource, action string) bool) []string {
		var out []string
		for _, p := range catalog.List() {
			if include(p.Resource, p.Action) {
				out = append(out, p.Name)
			}
		}
		return out
	}

	return []CreateRoleRequest{
		{
			Name:                     RoleOwner,
			Description:              "Full access to every resource",
			Level:                    LevelOwner,
			Permissions:              all,
			CustomPermissionsAllowed: true,
		},
		{
			Name:        RoleManager,
			Description: "Runs day-to-day operations; cannot manage roles or settings",
			Level:       LevelManager,
			Permissions: pick(func(resource, action string) bool {
				switch resource {
				case "roles", "settings":
					return action == "read"
				case "audit_logs":
					return action == "read"
				}
				return action != "delete" || resource == "maintenance" || resource == "documents"
			}),
			CustomPermissionsAllowed: true,
		},
		{
			Name:        RoleStaff,
			Description: "Handles maintenance and tenant communication",
			Level:       LevelStaff,
			Permissions: pick(func(resource, action string) bool {
				switch resource {
				case "maintenance", "documents":
					return action == "read" || action == "create" || action == "update"
				case "notifications":
					return action == "read" || action == "send"
				case "properties", "units", "leases", "tenants":
					return action == "read"
				}
				return false
			}),
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access to portfolio data",
			Level:       LevelViewer,
			Permissions: pick(func(resource, action string) bool {
				switch resource {
				case "users", "roles", "invitations", "audit_logs", "settings":
					return false
				}
				return action == "read"
			}),
		},
	}
}

// normalizePermissions returns a sorted copy without duplicates
func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// diffPermissions returns the names only in after and only in before
func diffPermissions(before, after []string) (added, removed []string) {
	added, removed = []string{}, []string{}
	b := make(map[string]struct{}, len(before))
	for _, p := range before {
		b[p] = struct{}{}
	}
	a := make(map[string]struct{}, len(after))
	for _, p := range after {
		a[p] = struct{}{}
		if _, ok := b[p]; !ok {
			added = append(added, p)
		}
	}
	for _, p := range before {
		if _, ok := a[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
