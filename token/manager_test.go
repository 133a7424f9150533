package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huddleup/identity/internal/utils"
	"github.com/huddleup/identity/tenants"
	"github.com/huddleup/identity/tenants/repoinmemory"
	"github.com/huddleup/identity/token"
	"github.com/huddleup/identity/token/keys"
	"github.com/huddleup/identity/users"
)

func testFixture(t *testing.T, tenantIDs ...string) (tenants.Repo, *keys.Keyring) {
	t.Helper()
	repo := repoinmemory.New()
	keyring := keys.NewKeyring()
	for _, id := range tenantIDs {
		require.NoError(t, repo.Upsert(&tenants.Tenant{
			ID:     id,
			Name:   id,
			Issuer: "https://" + id + ".auth.example.com",
			KeyID:  id + "-key-1",
		}))
		keyPair, err := keys.GenerateRSAKeyPair(id+"-key-1", 2048)
		require.NoError(t, err)
		keyring.Register(id, keys.NewKeyPairSigner(keyPair))
	}
	return repo, keyring
}

func testUser(id, email string) *users.User {
	return &users.User{
		ID:        id,
		Email:     email,
		Username:  id,
		FirstName: "Test",
		LastName:  "User",
		TenantIDs: []string{"acme"},
		Verified:  true,
	}
}

func TestManager_AccessTokenRoundtrip(t *testing.T) {
	tenantRepo, keyring := testFixture(t, "acme")
	manager, err := token.New(tenantRepo, keyring)
	require.NoError(t, err)

	user := testUser("user-1", "user1@acme.com")
	raw, err := manager.CreateAccessToken(user, "acme", "web-app", "openid profile")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	introspection, err := manager.Introspect(raw)
	require.NoError(t, err)
	require.True(t, introspection.Active)
	require.Equal(t, "user-1", utils.Value(introspection.Sub))
	require.Equal(t, "web-app", utils.Value(introspection.Aud))
	require.Equal(t, "https://acme.auth.example.com", utils.Value(introspection.Iss))
	require.Equal(t, "openid profile", introspection.Scope)
	require.Equal(t, "acme", introspection.TenantID)
}

func TestManager_IntrospectRejections(t *testing.T) {
	tenantRepo, keyring := testFixture(t, "acme")

	now := time.Now()
	clock := &now
	manager, err := token.New(tenantRepo, keyring, token.WithNowFunc(func() time.Time { return *clock }))
	require.NoError(t, err)

	user := testUser("user-1", "user1@acme.com")

	t.Run("empty token inactive", func(t *testing.T) {
		introspection, err := manager.Introspect("")
		require.NoError(t, err)
		require.False(t, introspection.Active)
	})

	t.Run("garbage token inactive", func(t *testing.T) {
		introspection, _ := manager.Introspect("garbage")
		require.False(t, introspection.Active)
	})

	t.Run("expired token inactive", func(t *testing.T) {
		raw, err := manager.CreateAccessToken(user, "acme", "web-app", "openid")
		require.NoError(t, err)

		later := now.Add(16 * time.Minute)
		clock = &later
		introspection, _ := manager.Introspect(raw)
		require.False(t, introspection.Active)
		clock = &now
	})

	t.Run("id token is not an access token", func(t *testing.T) {
		raw, err := manager.CreateIDToken(user, "acme", "web-app", "")
		require.NoError(t, err)

		introspection, _ := manager.Introspect(raw)
		require.False(t, introspection.Active)
	})
}

func TestManager_TenantIsolation(t *testing.T) {
	tenantRepo, keyring := testFixture(t, "acme", "globex")
	manager, err := token.New(tenantRepo, keyring)
	require.NoError(t, err)

	acmeUser := testUser("user-1", "user1@acme.com")
	globexUser := testUser("user-9", "user9@globex.com")

	acmeToken, err := manager.CreateAccessToken(acmeUser, "acme", "web-app", "openid")
	require.NoError(t, err)
	globexToken, err := manager.CreateAccessToken(globexUser, "globex", "portal", "openid")
	require.NoError(t, err)

	t.Run("each token introspects under its own tenant", func(t *testing.T) {
		acmeIntro, err := manager.Introspect(acmeToken)
		require.NoError(t, err)
		require.Equal(t, "acme", acmeIntro.TenantID)
		require.Equal(t, "user-1", utils.Value(acmeIntro.Sub))

		globexIntro, err := manager.Introspect(globexToken)
		require.NoError(t, err)
		require.Equal(t, "globex", globexIntro.TenantID)
		require.Equal(t, "user-9", utils.Value(globexIntro.Sub))
	})

	t.Run("unknown tenant claim inactive", func(t *testing.T) {
		// A token for a deleted tenant has no key to verify against.
		require.NoError(t, tenantRepo.Delete("globex"))
		introspection, _ := manager.Introspect(globexToken)
		require.False(t, introspection.Active)
	})
}
