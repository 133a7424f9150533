package repoinmemory

import (
	"sort"
	"sync"

	"github.com/huddleup/identity/clients"
	"github.com/huddleup/identity/internal/errors"
)

// Repo is an in-memory implementation of clients.Repo keyed
// tenantID -> clientID.
type Repo struct {
	mu      sync.RWMutex
	clients map[string]map[string]*clients.Client
}

func New() *Repo {
	return &Repo{clients: make(map[string]map[string]*clients.Client)}
}

var _ clients.Repo = (*Repo)(nil)

func (r *Repo) Upsert(tenantID string, clientData *clients.Client) error {
	if tenantID == "" || clientData == nil || clientData.ID == "" {
		return errors.ErrMalformedRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[tenantID]; !ok {
		r.clients[tenantID] = make(map[string]*clients.Client)
	}
	copied := *clientData
	copied.TenantID = tenantID
	r.clients[tenantID][clientData.ID] = &copied
	return nil
}

func (r *Repo) Delete(tenantID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenantClients, ok := r.clients[tenantID]; ok {
		delete(tenantClients, clientID)
	}
	return nil
}

func (r *Repo) Get(tenantID, clientID string) (*clients.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenantClients, ok := r.clients[tenantID]
	if !ok {
		return nil, errors.ErrUnknownClient
	}
	c, ok := tenantClients[clientID]
	if !ok {
		return nil, errors.ErrUnknownClient
	}
	copied := *c
	return &copied, nil
}

func (r *Repo) List(tenantID string, offset, limit int) ([]*clients.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenantClients := r.clients[tenantID]
	ids := make([]string, 0, len(tenantClients))
	for id := range tenantClients {
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

	result := make([]*clients.Client, 0, end-offset)
	for _, id := range ids[offset:end] {
		copied := *tenantClients[id]
		result = append(result, &copied)
	}
	return result, nil
}
