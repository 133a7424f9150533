package clients

import (
	"golang.org/x/crypto/bcrypt"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// Client is a registered OAuth2 client within a tenant. Clients are loaded
// from per-tenant configuration and immutable at request time.
type Client struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Type         ClientType `json:"type"` // public or confidential
	Description  string     `json:"description"`
	SecretHash   string     `json:"secret_hash,omitempty"` // bcrypt hash, confidential clients only
	RedirectURIs []string   `json:"redirect_uris"`
	Scopes       []string   `json:"scopes"` // Allowed scopes for this client
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// ValidateRedirectURI reports whether uri exactly matches one of the
// client's registered redirect URIs. Matching is literal string equality;
// prefix or wildcard matching would open redirect abuse.
func (c *Client) ValidateRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// CheckSecret compares a presented client_secret against the registered
// hash. Always false for clients without a stored hash.
func (c *Client) CheckSecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// HashSecret produces the bcrypt hash stored in Client.SecretHash.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	if requestedScopes == "" {
		return nil
	}
	for _, scope := range SplitScopes(requestedScopes) {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// SplitScopes splits a space-separated scope string, dropping empties.
func SplitScopes(scopes string) []string {
	result := []string{}
	start := 0
	for i := 0; i <= len(scopes); i++ {
		if i == len(scopes) || scopes[i] == ' ' {
			if i > start {
				result = append(result, scopes[start:i])
			}
			start = i + 1
		}
	}
	return result
}
