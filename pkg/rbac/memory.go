package rbac

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

// MemoryStore is an in-process RoleRepository and UserDirectory
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
	users map[string]*User
	err   error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles: make(map[string]*Role),
		users: make(map[string]*User),
	}
}

// FailWith makes every call return err until cleared with nil
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemoryStore) CreateRole(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.roles[role.ID]; ok {
		return apperrors.New(apperrors.KindAlreadyExists, "rbac.MemoryStore.CreateRole", "role %s already exists", role.ID)
	}
	for _, r := range m.roles {
		if r.Name == role.Name {
			return apperrors.New(apperrors.KindAlreadyExists, "rbac.MemoryStore.CreateRole", "role %q already exists", role.Name)
		}
	}
	m.roles[role.ID] = role.Clone()
	return nil
}

func (m *MemoryStore) GetRole(ctx context.Context, roleID string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	role, ok := m.roles[roleID]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.GetRole", "role %s not found", roleID)
	}
	return role.Clone(), nil
}

func (m *MemoryStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.roles {
		if r.Name == name {
			return r.Clone(), nil
		}
	}
	return nil, apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.GetRoleByName", "role %q not found", name)
}

func (m *MemoryStore) UpdateRole(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.roles[role.ID]; !ok {
		return apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.UpdateRole", "role %s not found", role.ID)
	}
	for id, r := range m.roles {
		if id != role.ID && r.Name == role.Name {
			return apperrors.New(apperrors.KindAlreadyExists, "rbac.MemoryStore.UpdateRole", "role %q already exists", role.Name)
		}
	}
	m.roles[role.ID] = role.Clone()
	return nil
}

func (m *MemoryStore) DeleteRole(ctx context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.roles[roleID]; !ok {
		return apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.DeleteRole", "role %s not found", roleID)
	}
	for _, u := range m.users {
		if u.RoleID == roleID {
			return apperrors.New(apperrors.KindRoleInUse, "rbac.MemoryStore.DeleteRole", "role %s is assigned to users", roleID)
		}
	}
	delete(m.roles, roleID)
	return nil
}

func (m *MemoryStore) ListRoles(ctx context.Context, filter RoleFilter) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	needle := strings.ToLower(filter.NameContains)
	matched := []*Role{}
	for _, r := range m.roles {
		if needle != "" && !strings.Contains(strings.ToLower(r.Name), needle) {
			continue
		}
		if filter.Level != 0 && r.Level != filter.Level {
			continue
		}
		matched = append(matched, r.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Level != matched[j].Level {
			return matched[i].Level < matched[j].Level
		}
		return matched[i].Name < matched[j].Name
	})

	limit, offset := clampPage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []*Role{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.GetUser", "user %s not found", userID)
	}
	return u.Clone(), nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	email = NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.GetUserByEmail", "user with email %s not found", email)
}

func (m *MemoryStore) GetUsersByRole(ctx context.Context, roleID string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	users := []*User{}
	for _, u := range m.users {
		if u.RoleID == roleID {
			users = append(users, u.Clone())
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.roles[user.RoleID]; !ok {
		return apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.CreateUser", "role %s not found", user.RoleID)
	}
	email := NormalizeEmail(user.Email)
	for id, u := range m.users {
		if id == user.ID || u.Email == email {
			return apperrors.New(apperrors.KindAlreadyExists, "rbac.MemoryStore.CreateUser", "user %s already exists", user.ID)
		}
	}
	cp := user.Clone()
	cp.Email = email
	m.users[user.ID] = cp
	return nil
}

func (m *MemoryStore) UpdateUserRole(ctx context.Context, userID, roleID string, at time.Time) error {
	return m.mutateUser("rbac.MemoryStore.UpdateUserRole", userID, func(u *User) error {
		if _, ok := m.roles[roleID]; !ok {
			return apperrors.New(apperrors.KindNotFound, "rbac.MemoryStore.UpdateUserRole", "role %s not found", roleID)
		}
		u.RoleID = roleID
		u.UpdatedAt = at.UTC()
		return nil
	})
}

func (m *MemoryStore) UpdateUserStatus(ctx context.Context, userID string, status UserStatus, at time.Time) error {
	return m.mutateUser("rbac.MemoryStore.UpdateUserStatus", userID, func(u *User) error {
		u.Status = status
		u.UpdatedAt = at.UTC()
		return nil
	})
}

func (m *MemoryStore) SetCustomPermissions(ctx context.Context, userID string, permissions []string, at time.Time) error {
	return m.mutateUser("rbac.MemoryStore.SetCustomPermissions", userID, func(u *User) error {
		u.CustomPermissions = append([]string(nil), permissions...)
		u.UpdatedAt = at.UTC()
		return nil
	})
}

func (m *MemoryStore) CountUsersByRole(ctx context.Context, roleID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, u := range m.users {
		if u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) mutateUser(op, userID string, fn func(*User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, op, "user %s not found", userID)
	}
	return fn(u)
}
