package invitations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/clock"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

const sweepBatchSize = 500

// Workflow drives invitations through their lifecycle
type Workflow struct {
	repo    Repository
	roles   rbac.RoleRepository
	users   rbac.UserDirectory
	cache   rbac.Invalidator
	audit   audit.Emitter
	ttl     time.Duration
	clock   clock.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Workflow
type Option func(*Workflow)

// WithTTL sets how long new and resent invitations stay acceptable
func WithTTL(ttl time.Duration) Option {
	return func(w *Workflow) {
		if ttl > 0 {
			w.ttl = ttl
		}
	}
}

// WithClock sets the time source
func WithClock(c clock.Clock) Option {
	return func(w *Workflow) { w.clock = clock.OrReal(c) }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(w *Workflow) { w.logger = observability.OrNop(l) }
}

// WithMetrics sets the transition counters
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Workflow) {
		if m != nil {
			w.metrics = m
		}
	}
}

// NewWorkflow wires an invitation workflow. Accept provisions users through
// users and invalidates their cached permissions through cache.
func NewWorkflow(repo Repository, roles rbac.RoleRepository, users rbac.UserDirectory, cache rbac.Invalidator, emitter audit.Emitter, opts ...Option) *Workflow {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	w := &Workflow{
		repo:    repo,
		roles:   roles,
		users:   users,
		cache:   cache,
		audit:   emitter,
		ttl:     DefaultTTL,
		clock:   clock.Real{},
		logger:  observability.NewNopLogger(),
		metrics: observability.NewUnregisteredMetrics(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// TTL returns the invitation lifetime
func (w *Workflow) TTL() time.Duration {
	return w.ttl
}

// Send invites email to join with roleID. A live invitation for the same
// address blocks the send; a past-due one is expired first.
func (w *Workflow) Send(ctx context.Context, email, roleID, invitedBy string) (_ *Invitation, err error) {
	const op = "invitations.Workflow.Send"
	ctx, span := observability.StartSpan(ctx, op, "role.id", roleID)
	defer func() { observability.EndSpan(span, err) }()

	email, err = rbac.ValidateEmail(op, email)
	if err != nil {
		return nil, err
	}
	if _, err := w.roles.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	existing, err := w.repo.GetPendingByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Live(w.clock.Now()) {
			return nil, duplicateLive(op, email)
		}
		if _, _, err := w.expire(ctx, existing); err != nil {
			return nil, err
		}
	case !apperrors.IsKind(err, apperrors.KindNotFound):
		return nil, err
	}

	now := w.clock.Now().UTC()
	inv := &Invitation{
		ID:         uuid.NewString(),
		Email:      email,
		RoleID:     roleID,
		InvitedBy:  invitedBy,
		Status:     StatusPending,
		ExpiresAt:  now.Add(w.ttl),
		LastSentAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := w.repo.Create(ctx, inv); err != nil {
		if apperrors.IsKind(err, apperrors.KindAlreadyExists) {
			return nil, duplicateLive(op, email)
		}
		return nil, err
	}

	w.metrics.InvitationTransitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	w.audit.Record(ctx, invitedBy, audit.ActionInvitationSend, audit.EntityInvitation, inv.ID, map[string]interface{}{
		"email":      inv.Email,
		"role_id":    inv.RoleID,
		"expires_at": inv.ExpiresAt.Format(time.RFC3339),
	}, audit.SeverityInfo)

	w.logger.WithFields(map[string]interface{}{"invitation_id": inv.ID, "role_id": roleID}).Info("invitation sent")
	return inv, nil
}

// Resend refreshes the expiry of a live invitation
func (w *Workflow) Resend(ctx context.Context, id, actorUserID string) (_ *Invitation, err error) {
	const op = "invitations.Workflow.Resend"
	ctx, span := observability.StartSpan(ctx, op, "invitation.id", id)
	defer func() { observability.EndSpan(span, err) }()

	inv, err := w.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, invalidTransition(op, inv, "resend")
	}

	now := w.clock.Now().UTC()
	next := inv.Clone()
	next.ExpiresAt = now.Add(w.ttl)
	next.ResendCount++
	next.LastSentAt = now
	next.UpdatedAt = now

	swapped, err := w.repo.CompareAndSwap(ctx, next, GuardOf(inv))
	if err != nil {
		return nil, err
	}
	if !swapped {
		latest, err := w.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest.Status == StatusPending {
			return w.Resend(ctx, id, actorUserID)
		}
		return nil, invalidTransition(op, latest, "resend")
	}

	w.metrics.InvitationTransitionsTotal.WithLabelValues(string(StatusPending)).Inc()
	w.audit.Record(ctx, actorUserID, audit.ActionInvitationResend, audit.EntityInvitation, id, map[string]interface{}{
		"email":        next.Email,
		"resend_count": next.ResendCount,
		"expires_at":   next.ExpiresAt.Format(time.RFC3339),
	}, audit.SeverityInfo)
	return next, nil
}

// Accept redeems an invitation for acceptingUserID. A new account is created
// with the invited role; an existing account with the invited email is moved
// to the role and activated. Exactly one concurrent caller wins.
func (w *Workflow) Accept(ctx context.Context, id, acceptingUserID string) (_ *Invitation, err error) {
	const op = "invitations.Workflow.Accept"
	ctx, span := observability.StartSpan(ctx, op, "invitation.id", id, "user.id", acceptingUserID)
	defer func() { observability.EndSpan(span, err) }()

	if acceptingUserID == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "accepting user id is required")
	}

	inv, err := w.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := resolvedError(op, inv); err != nil {
		return nil, err
	}

	existing, err := w.users.GetUser(ctx, acceptingUserID)
	switch {
	case err == nil:
		if existing.Email != inv.Email {
			return nil, apperrors.New(apperrors.KindInvalidInput, op, "invitation %s was sent to a different address", id)
		}
	case apperrors.IsKind(err, apperrors.KindNotFound):
		existing = nil
	default:
		return nil, err
	}
	if _, err := w.roles.GetRole(ctx, inv.RoleID); err != nil {
		return nil, err
	}

	now := w.clock.Now().UTC()
	claimed := inv.Clone()
	claimed.Status = StatusAccepted
	claimed.AcceptedAt = &now
	claimed.AcceptedBy = acceptingUserID
	claimed.UpdatedAt = now

	guard := GuardOf(inv)
	guard.LiveAt = now
	swapped, err := w.repo.CompareAndSwap(ctx, claimed, guard)
	if err != nil {
		return nil, err
	}
	if !swapped {
		latest, err := w.current(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := resolvedError(op, latest); err != nil {
			return nil, err
		}
		if latest.Status == StatusPending {
			// resent or released underneath us
			return w.Accept(ctx, id, acceptingUserID)
		}
		return nil, apperrors.New(apperrors.KindAlreadyResolved, op, "invitation %s was resolved concurrently", id)
	}

	provisioned, err := w.provision(ctx, claimed, existing, now)
	if err != nil {
		w.release(ctx, claimed, inv)
		return nil, err
	}

	invalidateErr := w.cache.Invalidate(ctx, acceptingUserID)
	if invalidateErr != nil {
		w.logger.WithError(invalidateErr).WithField("user_id", acceptingUserID).Error("failed to invalidate user in permission cache")
	}

	w.metrics.InvitationTransitionsTotal.WithLabelValues(string(StatusAccepted)).Inc()
	w.audit.Record(ctx, acceptingUserID, audit.ActionInvitationAccept, audit.EntityInvitation, id, map[string]interface{}{
		"email":       claimed.Email,
		"role_id":     claimed.RoleID,
		"user_id":     acceptingUserID,
		"provisioned": provisioned,
	}, audit.SeverityInfo)

	if invalidateErr != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, op, invalidateErr, "invitation accepted but cached permissions may be stale")
	}

	w.logger.WithFields(map[string]interface{}{"invitation_id": id, "user_id": acceptingUserID}).Info("invitation accepted")
	return claimed, nil
}

// provision creates or updates the accepting account and reports which
func (w *Workflow) provision(ctx context.Context, inv *Invitation, existing *rbac.User, now time.Time) (string, error) {
	if existing == nil {
		err := w.users.CreateUser(ctx, &rbac.User{
			ID:        inv.AcceptedBy,
			Email:     inv.Email,
			RoleID:    inv.RoleID,
			Status:    rbac.UserActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return "created", err
	}

	if existing.RoleID != inv.RoleID {
		if err := w.users.UpdateUserRole(ctx, existing.ID, inv.RoleID, now); err != nil {
			return "", err
		}
	}
	if existing.Status != rbac.UserActive {
		if err := w.users.UpdateUserStatus(ctx, existing.ID, rbac.UserActive, now); err != nil {
			return "", err
		}
	}
	return "updated", nil
}

// release returns a claimed invitation to pending after provisioning failed
func (w *Workflow) release(ctx context.Context, claimed, original *Invitation) {
	ctx = context.WithoutCancel(ctx)
	restored := original.Clone()
	restored.UpdatedAt = w.clock.Now().UTC()

	swapped, err := w.repo.CompareAndSwap(ctx, restored, GuardOf(claimed))
	if err != nil {
		w.logger.WithError(err).WithField("invitation_id", claimed.ID).Error("failed to release invitation after provisioning failure")
		return
	}
	if !swapped {
		w.logger.WithField("invitation_id", claimed.ID).Warn("claimed invitation changed before it could be released")
	}
}

// Cancel withdraws a pending invitation
func (w *Workflow) Cancel(ctx context.Context, id, cancelledBy string) (_ *Invitation, err error) {
	const op = "invitations.Workflow.Cancel"
	ctx, span := observability.StartSpan(ctx, op, "invitation.id", id)
	defer func() { observability.EndSpan(span, err) }()

	inv, err := w.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusPending {
		return nil, invalidTransition(op, inv, "cancel")
	}

	now := w.clock.Now().UTC()
	next := inv.Clone()
	next.Status = StatusCancelled
	next.CancelledAt = &now
	next.CancelledBy = cancelledBy
	next.UpdatedAt = now

	swapped, err := w.repo.CompareAndSwap(ctx, next, Guard{Status: StatusPending, ResendCount: inv.ResendCount})
	if err != nil {
		return nil, err
	}
	if !swapped {
		latest, err := w.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest.Status == StatusPending {
			return w.Cancel(ctx, id, cancelledBy)
		}
		return nil, invalidTransition(op, latest, "cancel")
	}

	w.metrics.InvitationTransitionsTotal.WithLabelValues(string(StatusCancelled)).Inc()
	w.audit.Record(ctx, cancelledBy, audit.ActionInvitationCancel, audit.EntityInvitation, id, map[string]interface{}{
		"email":   next.Email,
		"role_id": next.RoleID,
	}, audit.SeverityInfo)
	return next, nil
}

// Get returns an invitation, expiring it first when it is past due
func (w *Workflow) Get(ctx context.Context, id string) (*Invitation, error) {
	return w.current(ctx, id)
}

// List returns invitations matching filter newest first. Past-due pending
// invitations are expired before they are returned, so a Status filter of
// pending may yield fewer than Limit entries.
func (w *Workflow) List(ctx context.Context, filter Filter) ([]*Invitation, error) {
	filter.Email = rbac.NormalizeEmail(filter.Email)
	invitations, err := w.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := w.clock.Now()
	out := make([]*Invitation, 0, len(invitations))
	for _, inv := range invitations {
		if inv.PastDue(now) {
			inv, _, err = w.expire(ctx, inv)
			if err != nil {
				return nil, err
			}
		}
		if filter.Matches(inv) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// SweepExpired expires every past-due pending invitation and returns how
// many it transitioned.
func (w *Workflow) SweepExpired(ctx context.Context) (int, error) {
	const op = "invitations.Workflow.SweepExpired"
	ctx, span := observability.StartSpan(ctx, op)

	total := 0
	for {
		due, err := w.repo.ListPastDue(ctx, w.clock.Now(), sweepBatchSize)
		if err != nil {
			observability.EndSpan(span, err)
			return total, err
		}

		progressed := false
		for _, inv := range due {
			_, swapped, err := w.expire(ctx, inv)
			if err != nil {
				observability.EndSpan(span, err)
				return total, err
			}
			if swapped {
				progressed = true
				total++
			}
		}
		if len(due) < sweepBatchSize || !progressed {
			break
		}
	}

	observability.EndSpan(span, nil)
	if total > 0 {
		w.logger.WithField("count", total).Info("expired invitations swept")
	}
	return total, nil
}

// current loads an invitation and applies lazy expiry
func (w *Workflow) current(ctx context.Context, id string) (*Invitation, error) {
	inv, err := w.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.PastDue(w.clock.Now()) {
		inv, _, err = w.expire(ctx, inv)
	}
	return inv, err
}

// expire moves a past-due pending invitation to expired. When another
// writer moved it first the stored version is returned and swapped is false.
func (w *Workflow) expire(ctx context.Context, inv *Invitation) (_ *Invitation, swapped bool, err error) {
	now := w.clock.Now().UTC()
	next := inv.Clone()
	next.Status = StatusExpired
	next.UpdatedAt = now

	swapped, err = w.repo.CompareAndSwap(ctx, next, GuardOf(inv))
	if err != nil {
		return nil, false, err
	}
	if !swapped {
		latest, err := w.repo.Get(ctx, inv.ID)
		return latest, false, err
	}

	w.metrics.InvitationTransitionsTotal.WithLabelValues(string(StatusExpired)).Inc()
	w.audit.Record(ctx, audit.SystemActor, audit.ActionInvitationExpire, audit.EntityInvitation, inv.ID, map[string]interface{}{
		"email":      inv.Email,
		"role_id":    inv.RoleID,
		"expired_at": inv.ExpiresAt.Format(time.RFC3339),
	}, audit.SeverityInfo)
	return next, true, nil
}

func resolvedError(op string, inv *Invitation) error {
	switch inv.Status {
	case StatusExpired:
		return apperrors.New(apperrors.KindExpired, op, "invitation %s expired at %s", inv.ID, inv.ExpiresAt.Format(time.RFC3339))
	case StatusAccepted, StatusCancelled:
		return apperrors.New(apperrors.KindAlreadyResolved, op, "invitation %s is %s", inv.ID, inv.Status)
	}
	return nil
}

func invalidTransition(op string, inv *Invitation, verb string) error {
	return apperrors.New(apperrors.KindInvalidTransition, op, "cannot %s invitation %s: it is %s", verb, inv.ID, inv.Status)
}

func duplicateLive(op, email string) error {
	return apperrors.New(apperrors.KindDuplicateLiveInvitation, op, "a pending invitation for %s already exists", email)
}
