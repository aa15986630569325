package rbac

import (
	"context"
	"time"
)

// RoleRepository persists roles. Implementations return apperrors kinds:
// NotFound for unknown ids, AlreadyExists for a taken name, RoleInUse when
// deleting a role that users still reference, StoreUnavailable otherwise.
type RoleRepository interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, roleID string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID string) error
	ListRoles(ctx context.Context, filter RoleFilter) ([]*Role, error)
}

// UserDirectory is the account store the IAM core reads and updates
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUsersByRole(ctx context.Context, roleID string) ([]*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUserRole(ctx context.Context, userID, roleID string, at time.Time) error
	UpdateUserStatus(ctx context.Context, userID string, status UserStatus, at time.Time) error
	SetCustomPermissions(ctx context.Context, userID string, permissions []string, at time.Time) error
	CountUsersByRole(ctx context.Context, roleID string) (int, error)
}
