package repoinmemory

import (
	"sort"
	"sync"

	"github.com/huddleup/identity/internal/errors"
	"github.com/huddleup/identity/tenants"
)

// Repo is an in-memory implementation of tenants.Repo. Tenants are loaded
// at startup and read-mostly thereafter.
type Repo struct {
	mu      sync.RWMutex
	tenants map[string]*tenants.Tenant
}

func New() *Repo {
	return &Repo{tenants: make(map[string]*tenants.Tenant)}
}

var _ tenants.Repo = (*Repo)(nil)

func (r *Repo) Upsert(tenantData *tenants.Tenant) error {
	if tenantData == nil || tenantData.ID == "" {
		return errors.ErrMalformedRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *tenantData
	r.tenants[tenantData.ID] = &copied
	return nil
}

func (r *Repo) Delete(tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, tenantID)
	return nil
}

func (r *Repo) Get(tenantID string) (*tenants.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, errors.ErrTenantNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *Repo) List(offset, limit int) ([]*tenants.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	result := make([]*tenants.Tenant, 0, end-offset)
	for _, id := range ids[offset:end] {
		copied := *r.tenants[id]
		result = append(result, &copied)
	}
	return result, nil
}
