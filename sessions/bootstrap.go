package sessions

import (
	"sync"
	"time"

	"github.com/huddleup/identity/internal/errors"
)

// BootstrapStore issues single-use tokens that already-authenticated API
// callers present to /authorize in place of the interactive session cookie.
// Redemption is atomic take-once: a token redeemed twice fails the second
// time even under concurrency.
type BootstrapStore interface {
	Issue(tenantID, userID string, ttl time.Duration) (string, error)
	Redeem(tenantID, token string) (userID string, err error)
}

type bootstrapEntry struct {
	tenantID  string
	userID    string
	expiresAt time.Time
}

// InMemoryBootstrapStore is the in-process BootstrapStore.
type InMemoryBootstrapStore struct {
	mu      sync.Mutex
	tokens  map[string]bootstrapEntry
	nowFunc func() time.Time
}

type BootstrapOption func(*InMemoryBootstrapStore)

// WithBootstrapNowFunc sets the clock (primarily for testing)
func WithBootstrapNowFunc(now func() time.Time) BootstrapOption {
	return func(s *InMemoryBootstrapStore) {
		s.nowFunc = now
	}
}

func NewInMemoryBootstrapStore(options ...BootstrapOption) *InMemoryBootstrapStore {
	s := &InMemoryBootstrapStore{
		tokens:  make(map[string]bootstrapEntry),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ BootstrapStore = (*InMemoryBootstrapStore)(nil)

func (s *InMemoryBootstrapStore) Issue(tenantID, userID string, ttl time.Duration) (string, error) {
	if tenantID == "" || userID == "" {
		return "", errors.ErrMalformedRequest
	}
	token, err := NewSessionID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = bootstrapEntry{
		tenantID:  tenantID,
		userID:    userID,
		expiresAt: s.nowFunc().Add(ttl),
	}
	return token, nil
}

func (s *InMemoryBootstrapStore) Redeem(tenantID, token string) (string, error) {
	if tenantID == "" || token == "" {
		return "", errors.ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	if !ok {
		return "", errors.ErrInvalidSession
	}
	delete(s.tokens, token) // single use, removed win or lose

	if entry.tenantID != tenantID {
		return "", errors.ErrInvalidSession
	}
	if !entry.expiresAt.After(s.nowFunc()) {
		return "", errors.ErrInvalidSession
	}
	return entry.userID, nil
}
