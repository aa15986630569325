package invitations

import (
	"time"
)

// DefaultTTL is how long an invitation stays acceptable after it is sent
const DefaultTTL = 7 * 24 * time.Hour

// Status is the lifecycle state of an invitation
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusExpired || s == StatusCancelled
}

// Invitation is an offer for an email address to join with a role
type Invitation struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	RoleID      string     `json:"role_id"`
	InvitedBy   string     `json:"invited_by"`
	Status      Status     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  string     `json:"accepted_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
	ResendCount int        `json:"resend_count"`
	LastSentAt  time.Time  `json:"last_sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy
func (i *Invitation) Clone() *Invitation {
	cp := *i
	if i.AcceptedAt != nil {
		t := *i.AcceptedAt
		cp.AcceptedAt = &t
	}
	if i.CancelledAt != nil {
		t := *i.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

// Live reports whether the invitation can still be accepted at now
func (i *Invitation) Live(now time.Time) bool {
	return i.Status == StatusPending && now.Before(i.ExpiresAt)
}

// PastDue reports whether the invitation is pending but its expiry has passed
func (i *Invitation) PastDue(now time.Time) bool {
	return i.Status == StatusPending && !now.Before(i.ExpiresAt)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Email     string
	Status    Status
	RoleID    string
	InvitedBy string
	Limit     int
	Offset    int
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Normalize applies paging defaults
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether inv satisfies the filter's criteria, ignoring paging
func (f Filter) Matches(inv *Invitation) bool {
	if f.Email != "" && inv.Email != f.Email {
		return false
	}
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if f.RoleID != "" && inv.RoleID != f.RoleID {
		return false
	}
	if f.InvitedBy != "" && inv.InvitedBy != f.InvitedBy {
		return false
	}
	return true
}
