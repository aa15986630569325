package rbac

import (
	"context"
	"net/mail"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/observability"
)

// UserService is the write path for role assignment, account status and
// custom grants.
type UserService struct {
	users   UserDirectory
	roles   RoleRepository
	catalog *Catalog
	cache   Invalidator
	audit   audit.Emitter
	serviceOptions
}

// NewUserService wires a user service
func NewUserService(users UserDirectory, roles RoleRepository, catalog *Catalog, cache Invalidator, emitter audit.Emitter, opts ...ServiceOption) *UserService {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	return &UserService{
		users:          users,
		roles:          roles,
		catalog:        catalog,
		cache:          cache,
		audit:          emitter,
		serviceOptions: newServiceOptions(opts),
	}
}

// ValidateEmail normalizes an address and rejects malformed ones
func ValidateEmail(op, email string) (string, error) {
	normalized := NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", apperrors.New(apperrors.KindInvalidInput, op, "invalid email address %q", email)
	}
	return normalized, nil
}

func (s *UserService) invalidate(ctx context.Context, op, userID string) error {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("failed to invalidate user in permission cache")
		return apperrors.Wrap(apperrors.KindStoreUnavailable, op, err, "user saved but cached permissions may be stale")
	}
	return nil
}

// Get returns a user by id
func (s *UserService) Get(ctx context.Context, userID string) (*User, error) {
	return s.users.GetUser(ctx, userID)
}

// CreateUser provisions an account on an existing role
func (s *UserService) CreateUser(ctx context.Context, actorUserID string, req CreateUserRequest) (_ *User, err error) {
	const op = "rbac.UserService.CreateUser"
	ctx, span := observability.StartSpan(ctx, op)
	defer func() { observability.EndSpan(span, err) }()

	email, err := ValidateEmail(op, req.Email)
	if err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = UserActive
	}
	if !status.Valid() {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "invalid status %q", status)
	}
	role, err := s.roles.GetRole(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.clock.Now().UTC()
	user := &User{
		ID:          id,
		Email:       email,
		RoleID:      role.ID,
		Status:      status,
		Preferences: req.Preferences,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	invalidateErr := s.invalidate(ctx, op, user.ID)

	s.audit.Record(ctx, actorUserID, audit.ActionUserCreate, audit.EntityUser, user.ID, map[string]interface{}{
		"email":   user.Email,
		"role_id": role.ID,
		"level":   int(role.Level),
		"status":  string(user.Status),
	}, audit.SeverityInfo)

	if invalidateErr != nil {
		return nil, invalidateErr
	}
	return user, nil
}

// AssignRole moves a user to roleID. Moving to a more privileged level is
// audited as a warning.
func (s *UserService) AssignRole(ctx context.Context, actorUserID, userID, roleID string) (_ *User, err error) {
	const op = "rbac.UserService.AssignRole"
	ctx, span := observability.StartSpan(ctx, op, "user.id", userID, "role.id", roleID)
	defer func() { observability.EndSpan(span, err) }()

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if user.RoleID == role.ID {
		return user, nil
	}

	var fromLevel RoleLevel
	if previous, err := s.roles.GetRole(ctx, user.RoleID); err == nil {
		fromLevel = previous.Level
	} else if !apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.users.UpdateUserRole(ctx, userID, role.ID, now); err != nil {
		return nil, err
	}

	invalidateErr := s.invalidate(ctx, op, userID)

	severity := audit.SeverityInfo
	if fromLevel == 0 || role.Level < fromLevel {
		severity = audit.SeverityWarning
	}
	s.audit.Record(ctx, actorUserID, audit.ActionUserRoleChange, audit.EntityUser, userID, map[string]interface{}{
		"from_role_id": user.RoleID,
		"to_role_id":   role.ID,
		"from_level":   int(fromLevel),
		"to_level":     int(role.Level),
	}, severity)

	if invalidateErr != nil {
		return nil, invalidateErr
	}

	user.RoleID = role.ID
	user.UpdatedAt = now
	return user, nil
}

// SetStatus changes a user's lifecycle state
func (s *UserService) SetStatus(ctx context.Context, actorUserID, userID string, status UserStatus) (_ *User, err error) {
	const op = "rbac.UserService.SetStatus"
	ctx, span := observability.StartSpan(ctx, op, "user.id", userID, "status", string(status))
	defer func() { observability.EndSpan(span, err) }()

	if !status.Valid() {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "invalid status %q", status)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status == status {
		return user, nil
	}

	now := s.clock.Now().UTC()
	if err := s.users.UpdateUserStatus(ctx, userID, status, now); err != nil {
		return nil, err
	}

	invalidateErr := s.invalidate(ctx, op, userID)

	severity := audit.SeverityInfo
	if status == UserSuspended || status == UserInactive {
		severity = audit.SeverityWarning
	}
	s.audit.Record(ctx, actorUserID, audit.ActionUserStatusChange, audit.EntityUser, userID, map[string]interface{}{
		"from": string(user.Status),
		"to":   string(status),
	}, severity)

	if invalidateErr != nil {
		return nil, invalidateErr
	}

	user.Status = status
	user.UpdatedAt = now
	return user, nil
}

// GrantCustomPermissions adds explicit grants on top of the user's role.
// The role must allow custom permissions.
func (s *UserService) GrantCustomPermissions(ctx context.Context, actorUserID, userID string, permissions []string) (_ *User, err error) {
	const op = "rbac.UserService.GrantCustomPermissions"
	ctx, span := observability.StartSpan(ctx, op, "user.id", userID)
	defer func() { observability.EndSpan(span, err) }()

	if len(permissions) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "no permissions to grant")
	}
	if err := s.catalog.Validate(permissions); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.roles.GetRole(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	if !role.CustomPermissionsAllowed {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "role %q does not allow custom permissions", role.Name)
	}

	before := normalizePermissions(user.CustomPermissions)
	after := normalizePermissions(append(append([]string(nil), before...), permissions...))
	added, _ := diffPermissions(before, after)
	if len(added) == 0 {
		return user, nil
	}

	now := s.clock.Now().UTC()
	if err := s.users.SetCustomPermissions(ctx, userID, after, now); err != nil {
		return nil, err
	}

	invalidateErr := s.invalidate(ctx, op, userID)

	s.audit.Record(ctx, actorUserID, audit.ActionUserPermissionGrant, audit.EntityUser, userID, map[string]interface{}{
		"granted":     added,
		"permissions": after,
	}, audit.SeverityWarning)

	if invalidateErr != nil {
		return nil, invalidateErr
	}

	user.CustomPermissions = after
	user.UpdatedAt = now
	return user, nil
}

// RevokeCustomPermissions removes explicit grants. Names the user does not
// hold are ignored.
func (s *UserService) RevokeCustomPermissions(ctx context.Context, actorUserID, userID string, permissions []string) (_ *User, err error) {
	const op = "rbac.UserService.RevokeCustomPermissions"
	ctx, span := observability.StartSpan(ctx, op, "user.id", userID)
	defer func() { observability.EndSpan(span, err) }()

	if len(permissions) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "no permissions to revoke")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		drop[p] = struct{}{}
	}
	before := normalizePermissions(user.CustomPermissions)
	after := []string{}
	for _, p := range before {
		if _, ok := drop[p]; !ok {
			after = append(after, p)
		}
	}
	_, removed := diffPermissions(before, after)
	if len(removed) == 0 {
		return user, nil
	}

	now := s.clock.Now().UTC()
	if err := s.users.SetCustomPermissions(ctx, userID, after, now); err != nil {
		return nil, err
	}

	invalidateErr := s.invalidate(ctx, op, userID)

	s.audit.Record(ctx, actorUserID, audit.ActionUserPermissionRevoke, audit.EntityUser, userID, map[string]interface{}{
		"revoked":     removed,
		"permissions": after,
	}, audit.SeverityInfo)

	if invalidateErr != nil {
		return nil, invalidateErr
	}

	user.CustomPermissions = after
	user.UpdatedAt = now
	return user, nil
}
