package clients

// Repo is the per-tenant client registry. Lookups are always scoped by
// tenant; a client id registered in one tenant does not resolve in another.
type Repo interface {
	Upsert(tenantID string, clientData *Client) error
	Delete(tenantID, clientID string) error
	Get(tenantID, clientID string) (*Client, error)
	List(tenantID string, offset, limit int) ([]*Client, error)
}
