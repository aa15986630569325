package invitations

import (
	"context"
	"time"
)

// Repository persists invitations
type Repository interface {
	// Create stores a new invitation. A second pending invitation for the
	// same email fails with KindAlreadyExists.
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, id string) (*Invitation, error)
	// GetPendingByEmail returns the pending invitation for email, live or
	// past due, or KindNotFound.
	GetPendingByEmail(ctx context.Context, email string) (*Invitation, error)
	// List returns invitations newest first
	List(ctx context.Context, filter Filter) ([]*Invitation, error)
	// ListPastDue returns up to limit pending invitations expiring at or
	// before now, oldest expiry first.
	ListPastDue(ctx context.Context, now time.Time, limit int) ([]*Invitation, error)
	// CompareAndSwap overwrites the mutable fields of next.ID only while the
	// stored row still satisfies from. It reports false when the row has
	// moved on or does not exist.
	CompareAndSwap(ctx context.Context, next *Invitation, from Guard) (bool, error)
}

// Guard is the stored state a CompareAndSwap requires. Status and
// ResendCount together identify one version of a row: every transition
// changes the status and every resend bumps the count.
type Guard struct {
	Status      Status
	ResendCount int
	// LiveAt, when set, also requires the stored expiry to be after it
	LiveAt time.Time
}

// GuardOf expects inv exactly as it was read
func GuardOf(inv *Invitation) Guard {
	return Guard{Status: inv.Status, ResendCount: inv.ResendCount}
}

// Holds reports whether inv satisfies g
func (g Guard) Holds(inv *Invitation) bool {
	if inv.Status != g.Status || inv.ResendCount != g.ResendCount {
		return false
	}
	return g.LiveAt.IsZero() || inv.ExpiresAt.After(g.LiveAt)
}
