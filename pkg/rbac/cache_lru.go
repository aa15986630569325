package rbac

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/warden/pkg/clock"
)

// DefaultCacheSize bounds the in-process backend
const DefaultCacheSize = 10000

// LRUCacheBackend is a bounded in-process CacheBackend. All operations run
// under one mutex, which also guards the role index and the generation.
type LRUCacheBackend struct {
	mu         sync.Mutex
	entries    *lru.Cache[string, *Resolution]
	byRole     map[string]map[string]struct{}
	generation uint64
	clock      clock.Clock
}

// NewLRUCacheBackend creates a backend holding at most size entries
func NewLRUCacheBackend(size int, clk clock.Clock) (*LRUCacheBackend, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	b := &LRUCacheBackend{
		byRole: make(map[string]map[string]struct{}),
		clock:  clock.OrReal(clk),
	}
	entries, err := lru.NewWithEvict[string, *Resolution](size, b.onEvict)
	if err != nil {
		return nil, err
	}
	b.entries = entries
	return b, nil
}

// onEvict runs inside entries calls, so the mutex is already held
func (b *LRUCacheBackend) onEvict(userID string, res *Resolution) {
	roleID := res.RoleID()
	if users, ok := b.byRole[roleID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(b.byRole, roleID)
		}
	}
}

func (b *LRUCacheBackend) Get(ctx context.Context, userID string) (*Resolution, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, ok := b.entries.Get(userID)
	if !ok {
		return nil, false, nil
	}
	if !b.clock.Now().Before(res.ExpiresAt) {
		b.entries.Remove(userID)
		return nil, false, nil
	}
	return res, true, nil
}

func (b *LRUCacheBackend) Generation(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation, nil
}

func (b *LRUCacheBackend) SetIfGeneration(ctx context.Context, res *Resolution, generation uint64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation != b.generation {
		return false, nil
	}
	// Replacing an entry does not fire the eviction callback.
	if old, ok := b.entries.Peek(res.UserID); ok {
		b.onEvict(res.UserID, old)
	}
	b.entries.Add(res.UserID, res)
	roleID := res.RoleID()
	if b.byRole[roleID] == nil {
		b.byRole[roleID] = make(map[string]struct{})
	}
	b.byRole[roleID][res.UserID] = struct{}{}
	return true, nil
}

func (b *LRUCacheBackend) Delete(ctx context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.entries.Remove(userID)
	return nil
}

func (b *LRUCacheBackend) DeleteByRole(ctx context.Context, roleID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	for userID := range b.byRole[roleID] {
		b.entries.Remove(userID)
	}
	delete(b.byRole, roleID)
	return nil
}

func (b *LRUCacheBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.entries.Purge()
	b.byRole = make(map[string]map[string]struct{})
	return nil
}

// Len returns the number of cached entries
func (b *LRUCacheBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Len()
}
