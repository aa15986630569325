package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Store is the SQL implementation of RoleRepository and UserDirectory. The
// queries run unchanged on PostgreSQL and SQLite.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	metrics *observability.Metrics
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreTimeout bounds every query
func WithStoreTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.timeout = d }
}

// WithStoreMetrics records query latency
func WithStoreMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewStore creates a new rbac store
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:      db,
		timeout: 5 * time.Second,
		metrics: observability.NewUnregisteredMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	start := time.Now()
	return ctx, func(errp *error) {
		cancel()
		s.metrics.ObserveStore("rbac", op, start, *errp)
	}
}

const roleColumns = `id, name, description, level, permissions, custom_permissions_allowed, created_at, updated_at, created_by`

// CreateRole inserts a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) (err error) {
	ctx, done := s.begin(ctx, "create_role")
	defer done(&err)

	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roles (`+roleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		role.ID,
		role.Name,
		role.Description,
		int(role.Level),
		string(permissionsJSON),
		role.CustomPermissionsAllowed,
		role.CreatedAt.UTC(),
		role.UpdatedAt.UTC(),
		role.CreatedBy,
	)
	return storage.Classify("rbac.Store.CreateRole", err, fmt.Sprintf("failed to create role %q", role.Name))
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID string) (_ *Role, err error) {
	ctx, done := s.begin(ctx, "get_role")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID)
	role, err := scanRole(row)
	if err != nil {
		return nil, storage.Classify("rbac.Store.GetRole", err, "role "+roleID)
	}
	return role, nil
}

// GetRoleByName retrieves a role by its unique name
func (s *Store) GetRoleByName(ctx context.Context, name string) (_ *Role, err error) {
	ctx, done := s.begin(ctx, "get_role_by_name")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		return nil, storage.Classify("rbac.Store.GetRoleByName", err, fmt.Sprintf("role %q", name))
	}
	return role, nil
}

// UpdateRole overwrites the mutable fields of an existing role
func (s *Store) UpdateRole(ctx context.Context, role *Role) (err error) {
	ctx, done := s.begin(ctx, "update_role")
	defer done(&err)

	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE roles
		SET name = $1, description = $2, level = $3, permissions = $4,
			custom_permissions_allowed = $5, updated_at = $6
		WHERE id = $7
	`,
		role.Name,
		role.Description,
		int(role.Level),
		string(permissionsJSON),
		role.CustomPermissionsAllowed,
		role.UpdatedAt.UTC(),
		role.ID,
	)
	if err != nil {
		return storage.Classify("rbac.Store.UpdateRole", err, fmt.Sprintf("failed to update role %q", role.Name))
	}
	return requireAffected(result, "rbac.Store.UpdateRole", "role "+role.ID)
}

// DeleteRole removes a role that no user references. The reference check and
// the delete are a single statement.
func (s *Store) DeleteRole(ctx context.Context, roleID string) (err error) {
	ctx, done := s.begin(ctx, "delete_role")
	defer done(&err)

	const op = "rbac.Store.DeleteRole"
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM roles
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM users WHERE role_id = $1)
	`, roleID)
	if err != nil {
		if storage.IsForeignKeyViolation(err) {
			return apperrors.Wrap(apperrors.KindRoleInUse, op, err, "role "+roleID+" is assigned to users")
		}
		return storage.Classify(op, err, "failed to delete role "+roleID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Classify(op, err, "failed to delete role "+roleID)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE id = $1`, roleID).Scan(&exists)
	if err != nil {
		return storage.Classify(op, err, "failed to delete role "+roleID)
	}
	if exists == 0 {
		return apperrors.New(apperrors.KindNotFound, op, "role %s not found", roleID)
	}
	return apperrors.New(apperrors.KindRoleInUse, op, "role %s is assigned to users", roleID)
}

// ListRoles returns roles ordered by level then name
func (s *Store) ListRoles(ctx context.Context, filter RoleFilter) (_ []*Role, err error) {
	ctx, done := s.begin(ctx, "list_roles")
	defer done(&err)

	query := `SELECT ` + roleColumns + ` FROM roles WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filter.NameContains != "" {
		query += fmt.Sprintf(" AND LOWER(name) LIKE $%d", argCount)
		args = append(args, "%"+strings.ToLower(filter.NameContains)+"%")
		argCount++
	}

	if filter.Level != 0 {
		query += fmt.Sprintf(" AND level = $%d", argCount)
		args = append(args, int(filter.Level))
		argCount++
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY level ASC, name ASC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify("rbac.Store.ListRoles", err, "failed to list roles")
	}
	defer rows.Close()

	roles := []*Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, storage.Classify("rbac.Store.ListRoles", err, "failed to scan role")
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify("rbac.Store.ListRoles", err, "error iterating roles")
	}
	return roles, nil
}

const userColumns = `id, email, role_id, status, custom_permissions, preferences, created_at, updated_at`

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID string) (_ *User, err error) {
	ctx, done := s.begin(ctx, "get_user")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		return nil, storage.Classify("rbac.Store.GetUser", err, "user "+userID)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by normalized email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (_ *User, err error) {
	ctx, done := s.begin(ctx, "get_user_by_email")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		return nil, storage.Classify("rbac.Store.GetUserByEmail", err, "user with email "+email)
	}
	return user, nil
}

// GetUsersByRole returns every user assigned roleID
func (s *Store) GetUsersByRole(ctx context.Context, roleID string) (_ []*User, err error) {
	ctx, done := s.begin(ctx, "get_users_by_role")
	defer done(&err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role_id = $1 ORDER BY id`, roleID)
	if err != nil {
		return nil, storage.Classify("rbac.Store.GetUsersByRole", err, "failed to list users for role "+roleID)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storage.Classify("rbac.Store.GetUsersByRole", err, "failed to scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify("rbac.Store.GetUsersByRole", err, "error iterating users")
	}
	return users, nil
}

// CreateUser inserts a new user. An unknown role is reported as NotFound.
func (s *Store) CreateUser(ctx context.Context, user *User) (err error) {
	ctx, done := s.begin(ctx, "create_user")
	defer done(&err)

	const op = "rbac.Store.CreateUser"
	customJSON, err := json.Marshal(nonNil(user.CustomPermissions))
	if err != nil {
		return fmt.Errorf("failed to marshal custom permissions: %w", err)
	}
	prefs := user.Preferences
	if prefs == nil {
		prefs = map[string]string{}
	}
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID,
		NormalizeEmail(user.Email),
		user.RoleID,
		string(user.Status),
		string(customJSON),
		string(prefsJSON),
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if storage.IsForeignKeyViolation(err) {
		return apperrors.Wrap(apperrors.KindNotFound, op, err, "role "+user.RoleID)
	}
	return storage.Classify(op, err, "failed to create user "+user.Email)
}

// UpdateUserRole reassigns a user
func (s *Store) UpdateUserRole(ctx context.Context, userID, roleID string, at time.Time) (err error) {
	ctx, done := s.begin(ctx, "update_user_role")
	defer done(&err)

	const op = "rbac.Store.UpdateUserRole"
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role_id = $1, updated_at = $2 WHERE id = $3`,
		roleID, at.UTC(), userID,
	)
	if err != nil {
		if storage.IsForeignKeyViolation(err) {
			return apperrors.Wrap(apperrors.KindNotFound, op, err, "role "+roleID)
		}
		return storage.Classify(op, err, "failed to update role of user "+userID)
	}
	return requireAffected(result, op, "user "+userID)
}

// UpdateUserStatus changes a user's lifecycle state
func (s *Store) UpdateUserStatus(ctx context.Context, userID string, status UserStatus, at time.Time) (err error) {
	ctx, done := s.begin(ctx, "update_user_status")
	defer done(&err)

	const op = "rbac.Store.UpdateUserStatus"
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at.UTC(), userID,
	)
	if err != nil {
		return storage.Classify(op, err, "failed to update status of user "+userID)
	}
	return requireAffected(result, op, "user "+userID)
}

// SetCustomPermissions replaces a user's explicit grants
func (s *Store) SetCustomPermissions(ctx context.Context, userID string, permissions []string, at time.Time) (err error) {
	ctx, done := s.begin(ctx, "set_custom_permissions")
	defer done(&err)

	const op = "rbac.Store.SetCustomPermissions"
	customJSON, err := json.Marshal(nonNil(permissions))
	if err != nil {
		return fmt.Errorf("failed to marshal custom permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET custom_permissions = $1, updated_at = $2 WHERE id = $3`,
		string(customJSON), at.UTC(), userID,
	)
	if err != nil {
		return storage.Classify(op, err, "failed to update permissions of user "+userID)
	}
	return requireAffected(result, op, "user "+userID)
}

// CountUsersByRole counts users assigned roleID
func (s *Store) CountUsersByRole(ctx context.Context, roleID string) (_ int, err error) {
	ctx, done := s.begin(ctx, "count_users_by_role")
	defer done(&err)

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, storage.Classify("rbac.Store.CountUsersByRole", err, "failed to count users for role "+roleID)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var level int
	var permissionsJSON string

	if err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&level,
		&permissionsJSON,
		&role.CustomPermissionsAllowed,
		&role.CreatedAt,
		&role.UpdatedAt,
		&role.CreatedBy,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	role.Permissions = normalizePermissions(role.Permissions)
	role.Level = RoleLevel(level)
	role.CreatedAt = role.CreatedAt.UTC()
	role.UpdatedAt = role.UpdatedAt.UTC()
	return &role, nil
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var status, customJSON, prefsJSON string

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.RoleID,
		&status,
		&customJSON,
		&prefsJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(customJSON), &user.CustomPermissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(prefsJSON), &user.Preferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	user.Status = UserStatus(status)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func requireAffected(result sql.Result, op, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Classify(op, err, "failed to read affected rows")
	}
	if affected == 0 {
		return apperrors.New(apperrors.KindNotFound, op, "%s not found", what)
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NormalizeEmail lower-cases and trims an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
