package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
)

const sessionIDBytes = 32 // 256 bits of entropy

// LoginSession is a tenant-scoped login session created at successful
// login. Read-only thereafter; deleted on logout or natural expiry.
type LoginSession struct {
	ID        string
	TenantID  string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry.
func (s LoginSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Store holds login sessions keyed by (tenantID, sessionID). Lookups are
// keyed fetches only; an id that merely resembles a valid id never matches.
type Store interface {
	// Create mints a new session with a fresh random id.
	Create(tenantID, userID string, ttl time.Duration) (LoginSession, error)

	// Get retrieves a live session. Expired or unknown ids fail.
	Get(tenantID, sessionID string) (LoginSession, error)

	// Delete removes a session (logout).
	Delete(tenantID, sessionID string) error
}

// NewSessionID returns a cryptographically random session identifier.
// Session ids are never derived from counters, timestamps, or user ids.
func NewSessionID() (string, error) {
	bytes := make([]byte, sessionIDBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "[NewSessionID] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
