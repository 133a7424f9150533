package repofake

import (
	"sync"

	"github.com/huddleup/identity/internal/errors"
	"github.com/huddleup/identity/users"
)

// FakeUserRepo is an in-memory users.Repo used by tests and local runs.
type FakeUserRepo struct {
	mu    sync.RWMutex
	users map[string]*users.User // userID -> user
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{users: make(map[string]*users.User)}
}

var _ users.Repo = (*FakeUserRepo)(nil)

func (r *FakeUserRepo) Upsert(user *users.User) error {
	if user == nil || user.ID == "" {
		return errors.ErrMalformedRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *FakeUserRepo) FindByID(tenantID, userID string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok || !u.HasTenant(tenantID) {
		return nil, errors.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *FakeUserRepo) FindByEmail(tenantID, email string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email && u.HasTenant(tenantID) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, errors.ErrNotFound
}
