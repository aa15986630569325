package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

// Store is the SQL Repository. The queries run unchanged on PostgreSQL and
// SQLite.
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

// NewStore creates a new invitation store
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
		s.metrics.ObserveStore("invitations", op, start, *errp)
	}
}

const invitationColumns = `id, email, role_id, invited_by, status, expires_at, accepted_at, accepted_by,
	cancelled_at, cancelled_by, resend_count, last_sent_at, created_at, updated_at`

// Create inserts a new invitation
func (s *Store) Create(ctx context.Context, inv *Invitation) (err error) {
	ctx, done := s.begin(ctx, "create")
	defer done(&err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		inv.ID,
		inv.Email,
		inv.RoleID,
		inv.InvitedBy,
		string(inv.Status),
		inv.ExpiresAt.UTC(),
		nullTime(inv.AcceptedAt),
		nullString(inv.AcceptedBy),
		nullTime(inv.CancelledAt),
		nullString(inv.CancelledBy),
		inv.ResendCount,
		inv.LastSentAt.UTC(),
		inv.CreatedAt.UTC(),
		inv.UpdatedAt.UTC(),
	)
	return storage.Classify("invitations.Store.Create", err, "failed to create invitation for "+inv.Email)
}

// Get retrieves an invitation by ID
func (s *Store) Get(ctx context.Context, id string) (_ *Invitation, err error) {
	ctx, done := s.begin(ctx, "get")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, storage.Classify("invitations.Store.Get", err, "invitation "+id)
	}
	return inv, nil
}

// GetPendingByEmail retrieves the pending invitation for email
func (s *Store) GetPendingByEmail(ctx context.Context, email string) (_ *Invitation, err error) {
	ctx, done := s.begin(ctx, "get_pending_by_email")
	defer done(&err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE email = $1 AND status = $2`,
		email, string(StatusPending),
	)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, storage.Classify("invitations.Store.GetPendingByEmail", err, "pending invitation for "+email)
	}
	return inv, nil
}

// List returns invitations matching filter, newest first
func (s *Store) List(ctx context.Context, filter Filter) (_ []*Invitation, err error) {
	ctx, done := s.begin(ctx, "list")
	defer done(&err)

	filter = filter.Normalize()
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filter.Email != "" {
		query += fmt.Sprintf(" AND email = $%d", argCount)
		args = append(args, filter.Email)
		argCount++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(filter.Status))
		argCount++
	}
	if filter.RoleID != "" {
		query += fmt.Sprintf(" AND role_id = $%d", argCount)
		args = append(args, filter.RoleID)
		argCount++
	}
	if filter.InvitedBy != "" {
		query += fmt.Sprintf(" AND invited_by = $%d", argCount)
		args = append(args, filter.InvitedBy)
		argCount++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filter.Limit, filter.Offset)

	return s.query(ctx, "invitations.Store.List", query, args...)
}

// ListPastDue returns pending invitations whose expiry is at or before now
func (s *Store) ListPastDue(ctx context.Context, now time.Time, limit int) (_ []*Invitation, err error) {
	ctx, done := s.begin(ctx, "list_past_due")
	defer done(&err)

	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.query(ctx, "invitations.Store.ListPastDue", `
		SELECT `+invitationColumns+` FROM invitations
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC, id ASC
		LIMIT $3
	`, string(StatusPending), now.UTC(), limit)
}

func (s *Store) query(ctx context.Context, op, query string, args ...interface{}) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify(op, err, "failed to list invitations")
	}
	defer rows.Close()

	invitations := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, storage.Classify(op, err, "failed to scan invitation")
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(op, err, "error iterating invitations")
	}
	return invitations, nil
}

// CompareAndSwap writes next only while the stored row satisfies from
func (s *Store) CompareAndSwap(ctx context.Context, next *Invitation, from Guard) (_ bool, err error) {
	ctx, done := s.begin(ctx, "compare_and_swap")
	defer done(&err)

	const op = "invitations.Store.CompareAndSwap"
	query := `
		UPDATE invitations
		SET status = $1, expires_at = $2, accepted_at = $3, accepted_by = $4,
			cancelled_at = $5, cancelled_by = $6, resend_count = $7, last_sent_at = $8,
			updated_at = $9
		WHERE id = $10 AND status = $11 AND resend_count = $12`
	args := []interface{}{
		string(next.Status),
		next.ExpiresAt.UTC(),
		nullTime(next.AcceptedAt),
		nullString(next.AcceptedBy),
		nullTime(next.CancelledAt),
		nullString(next.CancelledBy),
		next.ResendCount,
		next.LastSentAt.UTC(),
		next.UpdatedAt.UTC(),
		next.ID,
		string(from.Status),
		from.ResendCount,
	}
	if !from.LiveAt.IsZero() {
		query += " AND expires_at > $13"
		args = append(args, from.LiveAt.UTC())
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storage.Classify(op, err, fmt.Sprintf("failed to move invitation %s from %s to %s", next.ID, from.Status, next.Status))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, storage.Classify(op, err, "failed to read affected rows")
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvitation(row rowScanner) (*Invitation, error) {
	var inv Invitation
	var status string
	var acceptedAt, cancelledAt sql.NullTime
	var acceptedBy, cancelledBy sql.NullString

	if err := row.Scan(
		&inv.ID,
		&inv.Email,
		&inv.RoleID,
		&inv.InvitedBy,
		&status,
		&inv.ExpiresAt,
		&acceptedAt,
		&acceptedBy,
		&cancelledAt,
		&cancelledBy,
		&inv.ResendCount,
		&inv.LastSentAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inv.Status = Status(status)
	if !inv.Status.Valid() {
		return nil, apperrors.New(apperrors.KindStoreUnavailable, "invitations.scanInvitation", "invitation %s has unknown status %q", inv.ID, status)
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time.UTC()
		inv.AcceptedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		inv.CancelledAt = &t
	}
	inv.AcceptedBy = acceptedBy.String
	inv.CancelledBy = cancelledBy.String
	inv.ExpiresAt = inv.ExpiresAt.UTC()
	inv.LastSentAt = inv.LastSentAt.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
