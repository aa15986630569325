package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

// MemoryStore keeps entries in process. It is both a Sink and a Store and is
// meant for tests and embedded use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	failErr error
}

// NewMemoryStore creates an empty in-memory audit store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Name() string { return "memory" }

// FailWith makes every subsequent Write return err; nil restores normal writes
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Write appends a copy of entry
func (m *MemoryStore) Write(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

// Entries returns every entry in write order
func (m *MemoryStore) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Count returns how many entries match filter, ignoring pagination
func (m *MemoryStore) Count(filter Filter) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if filter.Matches(e) {
			n++
		}
	}
	return n
}

// ListAuditLogs returns one page of matching entries, newest first
func (m *MemoryStore) ListAuditLogs(ctx context.Context, filter Filter) (*Page, error) {
	filter = filter.Normalize()

	m.mu.RLock()
	matched := make([]*Entry, 0)
	for _, e := range m.entries {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ID > matched[j].ID
	})

	page := &Page{Total: len(matched), Limit: filter.Limit, Offset: filter.Offset, Entries: []*Entry{}}
	if filter.Offset < len(matched) {
		end := filter.Offset + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Entries = matched[filter.Offset:end]
	}
	return page, nil
}

// Get retrieves a single entry by ID
func (m *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, apperrors.New(apperrors.KindNotFound, "audit.MemoryStore.Get", "audit entry %s not found", id)
}

// Stats summarizes entries in the optional time range
func (m *MemoryStore) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	filter := Filter{Start: start, End: end}
	stats := &Stats{
		ByAction:   make(map[Action]int64),
		BySeverity: make(map[Severity]int64),
	}
	actors := make(map[string]struct{})

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if !filter.Matches(e) {
			continue
		}
		stats.TotalEntries++
		stats.ByAction[e.Action]++
		stats.BySeverity[e.Severity]++
		actors[e.ActorUserID] = struct{}{}
	}
	stats.UniqueActors = int64(len(actors))
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }
