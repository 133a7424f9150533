package replay

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is the in-process Guard. The single mutex makes the
// check-and-insert atomic; expired entries are swept lazily on access.
type MemoryGuard struct {
	mu       sync.Mutex
	consumed map[string]time.Time // key -> expiry of the record
	nowFunc  func() time.Time
}

type MemoryGuardOption func(*MemoryGuard)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) MemoryGuardOption {
	return func(g *MemoryGuard) {
		g.nowFunc = now
	}
}

func NewMemoryGuard(options ...MemoryGuardOption) *MemoryGuard {
	g := &MemoryGuard{
		consumed: make(map[string]time.Time),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

var _ Guard = (*MemoryGuard)(nil)

func (g *MemoryGuard) Consume(_ context.Context, tenantID, codeID string, ttl time.Duration) (bool, error) {
	key := tenantID + ":" + codeID
	now := g.nowFunc()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.consumed[key]; ok && expiry.After(now) {
		return false, nil
	}
	g.consumed[key] = now.Add(ttl)
	g.sweepLocked(now)
	return true, nil
}

// sweepLocked drops expired records. Bounded by map size, which is itself
// bounded by codes issued within one lifetime window.
func (g *MemoryGuard) sweepLocked(now time.Time) {
	for key, expiry := range g.consumed {
		if !expiry.After(now) {
			delete(g.consumed, key)
		}
	}
}
