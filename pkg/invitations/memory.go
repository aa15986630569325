package invitations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

// MemoryStore is an in-process Repository
type MemoryStore struct {
	mu          sync.Mutex
	invitations map[string]*Invitation
	err         error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{invitations: make(map[string]*Invitation)}
}

// FailWith makes every call return err until cleared with nil
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// pendingFor returns the id of the pending invitation for email, if any.
// Callers hold mu.
func (m *MemoryStore) pendingFor(email string) (string, bool) {
	for id, inv := range m.invitations {
		if inv.Email == email && inv.Status == StatusPending {
			return id, true
		}
	}
	return "", false
}

func (m *MemoryStore) Create(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.invitations[inv.ID]; ok {
		return apperrors.New(apperrors.KindAlreadyExists, "invitations.MemoryStore.Create", "invitation %s already exists", inv.ID)
	}
	if inv.Status == StatusPending {
		if _, ok := m.pendingFor(inv.Email); ok {
			return apperrors.New(apperrors.KindAlreadyExists, "invitations.MemoryStore.Create", "pending invitation for %s already exists", inv.Email)
		}
	}
	m.invitations[inv.ID] = inv.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	inv, ok := m.invitations[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "invitations.MemoryStore.Get", "invitation %s not found", id)
	}
	return inv.Clone(), nil
}

func (m *MemoryStore) GetPendingByEmail(ctx context.Context, email string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.pendingFor(email)
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "invitations.MemoryStore.GetPendingByEmail", "no pending invitation for %s", email)
	}
	return m.invitations[id].Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	filter = filter.Normalize()
	matched := []*Invitation{}
	for _, inv := range m.invitations {
		if filter.Matches(inv) {
			matched = append(matched, inv.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Offset >= len(matched) {
		return []*Invitation{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func (m *MemoryStore) ListPastDue(ctx context.Context, now time.Time, limit int) ([]*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	due := []*Invitation{}
	for _, inv := range m.invitations {
		if inv.PastDue(now) {
			due = append(due, inv.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ExpiresAt.Equal(due[j].ExpiresAt) {
			return due[i].ExpiresAt.Before(due[j].ExpiresAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, next *Invitation, from Guard) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	current, ok := m.invitations[next.ID]
	if !ok || !from.Holds(current) {
		return false, nil
	}
	if next.Status == StatusPending && from.Status != StatusPending {
		if other, ok := m.pendingFor(current.Email); ok && other != next.ID {
			return false, apperrors.New(apperrors.KindAlreadyExists, "invitations.MemoryStore.CompareAndSwap", "pending invitation for %s already exists", current.Email)
		}
	}

	updated := next.Clone()
	updated.Email = current.Email
	updated.RoleID = current.RoleID
	updated.InvitedBy = current.InvitedBy
	updated.CreatedAt = current.CreatedAt
	m.invitations[next.ID] = updated
	return true, nil
}
