package sessions

import (
	"sync"
	"time"

	"github.com/huddleup/identity/internal/errors"
)

// InMemoryStore is an in-memory Store keyed tenantID -> sessionID.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]LoginSession
	nowFunc  func() time.Time
}

type InMemoryStoreOption func(*InMemoryStore)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.nowFunc = now
	}
}

func NewInMemoryStore(options ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[string]map[string]LoginSession),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Create(tenantID, userID string, ttl time.Duration) (LoginSession, error) {
	if tenantID == "" || userID == "" {
		return LoginSession{}, errors.ErrMalformedRequest
	}

	id, err := NewSessionID()
	if err != nil {
		return LoginSession{}, err
	}

	now := s.nowFunc()
	session := LoginSession{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tenantID]; !ok {
		s.sessions[tenantID] = make(map[string]LoginSession)
	}
	s.sessions[tenantID][id] = session
	return session, nil
}

func (s *InMemoryStore) Get(tenantID, sessionID string) (LoginSession, error) {
	if tenantID == "" || sessionID == "" {
		return LoginSession{}, errors.ErrInvalidSession
	}

	s.mu.RLock()
	tenantSessions, ok := s.sessions[tenantID]
	if !ok {
		s.mu.RUnlock()
		return LoginSession{}, errors.ErrInvalidSession
	}
	session, ok := tenantSessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return LoginSession{}, errors.ErrInvalidSession
	}
	if session.Expired(s.nowFunc()) {
		_ = s.Delete(tenantID, sessionID)
		return LoginSession{}, errors.ErrInvalidSession
	}
	return session, nil
}

func (s *InMemoryStore) Delete(tenantID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenantSessions, ok := s.sessions[tenantID]
	if !ok {
		return nil
	}
	delete(tenantSessions, sessionID)
	if len(tenantSessions) == 0 {
		delete(s.sessions, tenantID)
	}
	return nil
}
