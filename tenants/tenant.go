package tenants

// Tenant represents an isolated organization with its own OAuth2
// configuration. Each tenant has its own issuer, audience, and signing key
// so that tokens minted for one tenant never verify for another.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Issuer   string `json:"issuer"`   // OAuth2 issuer URL (e.g., "https://tenant-a.auth.example.com")
	Audience string `json:"audience"` // OAuth2 audience (e.g., "https://tenant-a.api.example.com")
	KeyID    string `json:"key_id"`   // Identifier of the tenant's signing key (for rotation)
}
