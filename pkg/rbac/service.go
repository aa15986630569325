package rbac

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/clock"
	"github.com/platinummonkey/warden/pkg/observability"
)

const maxRoleNameLength = 255

type serviceOptions struct {
	clock  clock.Clock
	levels LevelRange
	logger *observability.Logger
}

// ServiceOption configures RoleService and UserService
type ServiceOption func(*serviceOptions)

// WithClock sets the time source for timestamps
func WithClock(c clock.Clock) ServiceOption {
	return func(o *serviceOptions) { o.clock = clock.OrReal(c) }
}

// WithLevelRange restricts the levels roles may use
func WithLevelRange(r LevelRange) ServiceOption {
	return func(o *serviceOptions) { o.levels = r }
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = observability.OrNop(l) }
}

func newServiceOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{
		clock:  clock.Real{},
		levels: DefaultLevelRange(),
		logger: observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RoleService is the write path for roles. Every successful mutation is
// audited and has invalidated the affected cache entries when it returns.
type RoleService struct {
	repo    RoleRepository
	users   UserDirectory
	catalog *Catalog
	cache   Invalidator
	audit   audit.Emitter
	serviceOptions
}

// NewRoleService wires a role service
func NewRoleService(repo RoleRepository, users UserDirectory, catalog *Catalog, cache Invalidator, emitter audit.Emitter, opts ...ServiceOption) *RoleService {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	return &RoleService{
		repo:           repo,
		users:          users,
		catalog:        catalog,
		cache:          cache,
		audit:          emitter,
		serviceOptions: newServiceOptions(opts),
	}
}

// Catalog returns the permission catalog roles are validated against
func (s *RoleService) Catalog() *Catalog {
	return s.catalog
}

func (s *RoleService) validateName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.New(apperrors.KindInvalidInput, op, "role name is required")
	}
	if len(name) > maxRoleNameLength {
		return "", apperrors.New(apperrors.KindInvalidInput, op, "role name exceeds %d characters", maxRoleNameLength)
	}
	return name, nil
}

func (s *RoleService) validateLevel(op string, level RoleLevel) error {
	if !s.levels.Contains(level) {
		return apperrors.New(apperrors.KindInvalidLevel, op, "level %d is outside %d..%d", level, s.levels.Min, s.levels.Max)
	}
	return nil
}

// Create adds a role
func (s *RoleService) Create(ctx context.Context, actorUserID string, req CreateRoleRequest) (_ *Role, err error) {
	const op = "rbac.RoleService.Create"
	ctx, span := observability.StartSpan(ctx, op, "role.name", req.Name)
	defer func() { observability.EndSpan(span, err) }()

	name, err := s.validateName(op, req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.validateLevel(op, req.Level); err != nil {
		return nil, err
	}
	if err := s.catalog.Validate(req.Permissions); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	role := &Role{
		ID:                       uuid.NewString(),
		Name:                     name,
		Description:              strings.TrimSpace(req.Description),
		Level:                    req.Level,
		Permissions:              normalizePermissions(req.Permissions),
		CustomPermissionsAllowed: req.CustomPermissionsAllowed,
		CreatedAt:                now,
		UpdatedAt:                now,
		CreatedBy:                actorUserID,
	}

	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actorUserID, audit.ActionRoleCreate, audit.EntityRole, role.ID, map[string]interface{}{
		"name":                       role.Name,
		"level":                      int(role.Level),
		"permissions":                role.Permissions,
		"custom_permissions_allowed": role.CustomPermissionsAllowed,
	}, audit.SeverityInfo)

	s.logger.WithFields(map[string]interface{}{"role_id": role.ID, "name": role.Name}).Info("role created")
	return role, nil
}

// Update applies a partial change to a role. An update that changes nothing
// returns the stored role without auditing.
func (s *RoleService) Update(ctx context.Context, actorUserID, roleID string, update RoleUpdate) (_ *Role, err error) {
	const op = "rbac.RoleService.Update"
	ctx, span := observability.StartSpan(ctx, op, "role.id", roleID)
	defer func() { observability.EndSpan(span, err) }()

	current, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	var changed []string

	if update.Name != nil {
		name, err := s.validateName(op, *update.Name)
		if err != nil {
			return nil, err
		}
		if name != current.Name {
			next.Name = name
			changed = append(changed, "name")
		}
	}
	if update.Description != nil {
		desc := strings.TrimSpace(*update.Description)
		if desc != current.Description {
			next.Description = desc
			changed = append(changed, "description")
		}
	}
	if update.Level != nil {
		if err := s.validateLevel(op, *update.Level); err != nil {
			return nil, err
		}
		if *update.Level != current.Level {
			next.Level = *update.Level
			changed = append(changed, "level")
		}
	}
	permissionsChanged := false
	if update.Permissions != nil {
		if err := s.catalog.Validate(*update.Permissions); err != nil {
			return nil, err
		}
		perms := normalizePermissions(*update.Permissions)
		if !equalStrings(perms, current.Permissions) {
			next.Permissions = perms
			permissionsChanged = true
			changed = append(changed, "permissions")
		}
	}
	if update.CustomPermissionsAllowed != nil && *update.CustomPermissionsAllowed != current.CustomPermissionsAllowed {
		next.CustomPermissionsAllowed = *update.CustomPermissionsAllowed
		changed = append(changed, "custom_permissions_allowed")
	}

	if len(changed) == 0 {
		return current, nil
	}

	next.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateRole(ctx, next); err != nil {
		return nil, err
	}

	invalidateErr := s.invalidateRole(ctx, roleID)

	severity := audit.SeverityInfo
	if permissionsChanged {
		severity = audit.SeverityWarning
	}
	s.audit.Record(ctx, actorUserID, audit.ActionRoleUpdate, audit.EntityRole, roleID, map[string]interface{}{
		"name":           next.Name,
		"changed_fields": changed,
	}, severity)

	if permissionsChanged {
		added, removed := diffPermissions(current.Permissions, next.Permissions)
		s.audit.Record(ctx, actorUserID, audit.ActionRolePermissionChange, audit.EntityRole, roleID, map[string]interface{}{
			"name":    next.Name,
			"before":  current.Permissions,
			"after":   next.Permissions,
			"added":   added,
			"removed": removed,
		}, audit.SeverityWarning)
	}

	if invalidateErr != nil {
		return nil, invalidateErr
	}

	s.logger.WithFields(map[string]interface{}{"role_id": roleID, "changed_fields": changed}).Info("role updated")
	return next, nil
}

// invalidateRole drops the cached resolutions of every holder of roleID
func (s *RoleService) invalidateRole(ctx context.Context, roleID string) error {
	const op = "rbac.RoleService.invalidateRole"
	if err := s.cache.InvalidateByRole(ctx, roleID); err != nil {
		s.logger.WithError(err).WithField("role_id", roleID).Error("failed to invalidate role in permission cache")
		return apperrors.Wrap(apperrors.KindStoreUnavailable, op, err, "role saved but cached permissions may be stale")
	}

	holders, err := s.users.GetUsersByRole(ctx, roleID)
	if err != nil {
		s.logger.WithError(err).WithField("role_id", roleID).Error("failed to list role holders for invalidation")
		return apperrors.Wrap(apperrors.KindStoreUnavailable, op, err, "role saved but cached permissions may be stale")
	}
	for _, u := range holders {
		if err := s.cache.Invalidate(ctx, u.ID); err != nil {
			s.logger.WithError(err).WithField("user_id", u.ID).Error("failed to invalidate user in permission cache")
			return apperrors.Wrap(apperrors.KindStoreUnavailable, op, err, "role saved but cached permissions may be stale")
		}
	}
	return nil
}

// Delete removes a role no user holds
func (s *RoleService) Delete(ctx context.Context, actorUserID, roleID string) (err error) {
	const op = "rbac.RoleService.Delete"
	ctx, span := observability.StartSpan(ctx, op, "role.id", roleID)
	defer func() { observability.EndSpan(span, err) }()

	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	invalidateErr := s.cache.InvalidateByRole(ctx, roleID)

	s.audit.Record(ctx, actorUserID, audit.ActionRoleDelete, audit.EntityRole, roleID, map[string]interface{}{
		"name":  role.Name,
		"level": int(role.Level),
	}, audit.SeverityWarning)

	if invalidateErr != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, op, invalidateErr, "role deleted but cached permissions may be stale")
	}

	s.logger.WithFields(map[string]interface{}{"role_id": roleID, "name": role.Name}).Info("role deleted")
	return nil
}

// Get returns a role by id
func (s *RoleService) Get(ctx context.Context, roleID string) (*Role, error) {
	return s.repo.GetRole(ctx, roleID)
}

// GetByName returns a role by name
func (s *RoleService) GetByName(ctx context.Context, name string) (*Role, error) {
	return s.repo.GetRoleByName(ctx, strings.TrimSpace(name))
}

// List returns roles matching filter ordered by level then name
func (s *RoleService) List(ctx context.Context, filter RoleFilter) ([]*Role, error) {
	return s.repo.ListRoles(ctx, filter)
}

// SeedBuiltInRoles creates any missing built-in role. Existing roles with
// the same name are left untouched.
func SeedBuiltInRoles(ctx context.Context, svc *RoleService, actorUserID string) ([]*Role, error) {
	var created []*Role
	for _, req := range BuiltInRoles(svc.catalog) {
		_, err := svc.repo.GetRoleByName(ctx, req.Name)
		if err == nil {
			continue
		}
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			return created, err
		}

		role, err := svc.Create(ctx, actorUserID, req)
		if apperrors.IsKind(err, apperrors.KindAlreadyExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, role)
	}
	return created, nil
}
