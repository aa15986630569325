package rbac

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Reason explains an authorization decision
type Reason string

const (
	ReasonAllowed          Reason = "Allowed"
	ReasonUserNotFound     Reason = "UserNotFound"
	ReasonUserInactive     Reason = "UserInactive"
	ReasonPermissionDenied Reason = "PermissionDenied"
	ReasonStoreUnavailable Reason = "StoreUnavailable"
)

// Decision is the outcome of Authorize. Err carries the lookup failure
// behind a StoreUnavailable denial.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason"`
	Permission string `json:"permission"`
	Err        error  `json:"-"`
}

// Resolver yields a user's effective access
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*Resolution, error)
}

// Authorizer answers access questions. It has no side effects beyond
// metrics and traces and fails closed.
type Authorizer struct {
	resolver Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// AuthorizerOption configures an Authorizer
type AuthorizerOption func(*Authorizer)

// WithAuthorizerLogger sets the logger used for denials
func WithAuthorizerLogger(l *observability.Logger) AuthorizerOption {
	return func(a *Authorizer) { a.logger = observability.OrNop(l) }
}

// WithAuthorizerMetrics sets the decision counters
func WithAuthorizerMetrics(m *observability.Metrics) AuthorizerOption {
	return func(a *Authorizer) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAuthorizer creates an authorizer over resolver, usually a PermissionCache
func NewAuthorizer(resolver Resolver, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		resolver: resolver,
		logger:   observability.NewNopLogger(),
		metrics:  observability.NewUnregisteredMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize decides whether userID may perform action on resource
func (a *Authorizer) Authorize(ctx context.Context, userID, resource, action string) Decision {
	permission := PermissionName(resource, action)
	ctx, span := observability.StartSpan(ctx, "rbac.Authorize", "user.id", userID, "permission", permission)
	defer span.End()

	decision := a.decide(ctx, userID, permission)
	a.record(span, userID, decision)
	return decision
}

func (a *Authorizer) decide(ctx context.Context, userID, permission string) Decision {
	res, err := a.resolver.Resolve(ctx, userID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return Decision{Reason: ReasonUserNotFound, Permission: permission}
		}
		return Decision{Reason: ReasonStoreUnavailable, Permission: permission, Err: err}
	}
	if !res.Active() {
		return Decision{Reason: ReasonUserInactive, Permission: permission}
	}
	if !res.Has(permission) {
		return Decision{Reason: ReasonPermissionDenied, Permission: permission}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, Permission: permission}
}

func (a *Authorizer) record(span trace.Span, userID string, d Decision) {
	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	a.metrics.AuthzDecisionsTotal.WithLabelValues(result, string(d.Reason)).Inc()
	span.SetAttributes(
		attribute.Bool("authz.allowed", d.Allowed),
		attribute.String("authz.reason", string(d.Reason)),
	)
	if d.Err != nil {
		span.RecordError(d.Err)
		a.logger.WithError(d.Err).WithField("user_id", userID).Error("authorization failed closed")
		return
	}
	if !d.Allowed {
		a.logger.WithFields(map[string]interface{}{
			"user_id":    userID,
			"permission": d.Permission,
			"reason":     string(d.Reason),
		}).Debug("authorization denied")
	}
}

// HasAnyPermission reports whether the user is active and holds at least
// one of permissions. It stops at the first match.
func (a *Authorizer) HasAnyPermission(ctx context.Context, userID string, permissions ...string) bool {
	res, ok := a.activeResolution(ctx, userID)
	if !ok {
		return false
	}
	for _, p := range permissions {
		if res.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user is active and holds every one
// of permissions. It stops at the first miss.
func (a *Authorizer) HasAllPermissions(ctx context.Context, userID string, permissions ...string) bool {
	res, ok := a.activeResolution(ctx, userID)
	if !ok {
		return false
	}
	for _, p := range permissions {
		if !res.Has(p) {
			return false
		}
	}
	return true
}

// RoleLevelAtLeast reports whether the user's role is at least as
// privileged as required. Inactive users and dangling roles never qualify.
func (a *Authorizer) RoleLevelAtLeast(ctx context.Context, userID string, required RoleLevel) bool {
	res, ok := a.activeResolution(ctx, userID)
	if !ok || res.Role == nil {
		return false
	}
	return res.Role.Level.AtLeast(required)
}

func (a *Authorizer) activeResolution(ctx context.Context, userID string) (*Resolution, bool) {
	res, err := a.resolver.Resolve(ctx, userID)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindNotFound) {
			a.logger.WithError(err).WithField("user_id", userID).Error("permission lookup failed closed")
		}
		return nil, false
	}
	return res, res.Active()
}
