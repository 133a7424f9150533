package users

// Repo is the user-lookup capability consumed by the authorization server.
// Both lookups are tenant-scoped: a user resolves only within a tenant it
// belongs to.
type Repo interface {
	Upsert(user *User) error
	FindByID(tenantID, userID string) (*User, error)
	FindByEmail(tenantID, email string) (*User, error)
}
