package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is the identity record the authorization server resolves claims
// from. The user subsystem is an external collaborator; only the fields
// needed to populate token and userinfo claims live here.
type User struct {
	ID           string    `json:"id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"` // Never serialize
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	DateJoined   time.Time `json:"date_joined,omitempty"`

	TenantIDs []string `json:"tenant_ids,omitempty"` // Tenants this user belongs to
	Verified  bool     `json:"verified,omitempty"`
	Blocked   bool     `json:"blocked,omitempty"`
}

// FullName returns the display name used for the "name" claim.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) HasTenant(tenantID string) bool {
	if tenantID == "" {
		return false
	}
	for _, id := range u.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
