package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/huddleup/identity/auth"
	"github.com/huddleup/identity/authcode"
	"github.com/huddleup/identity/clients"
	clientsinmemory "github.com/huddleup/identity/clients/repoinmemory"
	"github.com/huddleup/identity/internal/errors"
	"github.com/huddleup/identity/ratelimit"
	"github.com/huddleup/identity/replay"
	"github.com/huddleup/identity/sessions"
	"github.com/huddleup/identity/tenants"
	tenantsinmemory "github.com/huddleup/identity/tenants/repoinmemory"
	"github.com/huddleup/identity/token"
	"github.com/huddleup/identity/token/keys"
	"github.com/huddleup/identity/users"
	"github.com/huddleup/identity/users/repofake"
)

type fixture struct {
	service   *auth.AuthorizationService
	users     *repofake.FakeUserRepo
	sessions  *sessions.InMemoryStore
	bootstrap *sessions.InMemoryBootstrapStore
	clients   clients.Repo
	tenants   tenants.Repo
	clock     *time.Time
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

// loginSession creates a session directly in the store, bypassing the
// credential check, for tests that only need an authenticated caller.
func (f *fixture) loginSession(t *testing.T, tenantID, userID string) sessions.LoginSession {
	t.Helper()
	session, err := f.sessions.Create(tenantID, userID, 30*time.Minute)
	require.NoError(t, err)
	return session
}

func (f *fixture) authorize(t *testing.T, tenantID, userID, clientID, redirectURI string) string {
	t.Helper()
	session := f.loginSession(t, tenantID, userID)
	result, err := f.service.Authorize(&auth.AuthorizationParameters{
		TenantID:     tenantID,
		ClientID:     clientID,
		ResponseType: auth.ResponseTypeCode,
		RedirectURI:  redirectURI,
		Scope:        "openid profile email",
		SessionID:    session.ID,
	})
	require.NoError(t, err)
	return result.Code
}

const (
	acmeRedirect   = "https://app.acme.com/callback"
	globexRedirect = "https://portal.globex.com/callback"
	clientSecret   = "s3cr3t-value"
)

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()

	now := time.Now()
	clock := &now
	nowFunc := func() time.Time { return *clock }

	tenantRepo := tenantsinmemory.New()
	clientRepo := clientsinmemory.New()
	userRepo := repofake.NewFakeUserRepo()
	keyring := keys.NewKeyring()

	for _, id := range []string{"acme", "globex"} {
		require.NoError(t, tenantRepo.Upsert(&tenants.Tenant{
			ID:     id,
			Name:   id,
			Issuer: "https://" + id + ".auth.example.com",
			KeyID:  id + "-key-1",
		}))
		keyPair, err := keys.GenerateRSAKeyPair(id+"-key-1", 2048)
		require.NoError(t, err)
		keyring.Register(id, keys.NewKeyPairSigner(keyPair))
	}

	secretHash, err := clients.HashSecret(clientSecret)
	require.NoError(t, err)

	require.NoError(t, clientRepo.Upsert("acme", &clients.Client{
		ID:           "web-app",
		TenantID:     "acme",
		Type:         clients.ClientTypeConfidential,
		SecretHash:   secretHash,
		RedirectURIs: []string{acmeRedirect},
		Scopes:       []string{"openid", "profile", "email"},
	}))
	require.NoError(t, clientRepo.Upsert("acme", &clients.Client{
		ID:           "spa",
		TenantID:     "acme",
		Type:         clients.ClientTypePublic,
		RedirectURIs: []string{acmeRedirect},
		Scopes:       []string{"openid", "profile", "email"},
	}))
	require.NoError(t, clientRepo.Upsert("globex", &clients.Client{
		ID:           "portal",
		TenantID:     "globex",
		Type:         clients.ClientTypeConfidential,
		SecretHash:   secretHash,
		RedirectURIs: []string{globexRedirect},
		Scopes:       []string{"openid", "profile", "email"},
	}))

	passwordHash, err := users.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, userRepo.Upsert(&users.User{
		ID:           "user-1",
		Email:        "alice@acme.com",
		Username:     "alice",
		PasswordHash: passwordHash,
		FirstName:    "Alice",
		LastName:     "Archer",
		TenantIDs:    []string{"acme"},
		Verified:     true,
	}))
	require.NoError(t, userRepo.Upsert(&users.User{
		ID:           "user-2",
		Email:        "bob@acme.com",
		Username:     "bob",
		PasswordHash: passwordHash,
		FirstName:    "Bob",
		LastName:     "Builder",
		TenantIDs:    []string{"acme"},
		Verified:     true,
	}))
	require.NoError(t, userRepo.Upsert(&users.User{
		ID:           "user-9",
		Email:        "gloria@globex.com",
		Username:     "gloria",
		PasswordHash: passwordHash,
		TenantIDs:    []string{"globex"},
		Verified:     true,
	}))

	codec, err := authcode.NewCodec(tenantRepo, keyring, authcode.WithNowFunc(nowFunc))
	require.NoError(t, err)
	tokenManager, err := token.New(tenantRepo, keyring, token.WithNowFunc(nowFunc))
	require.NoError(t, err)

	sessionStore := sessions.NewInMemoryStore(sessions.WithNowFunc(nowFunc))
	bootstrapStore := sessions.NewInMemoryBootstrapStore(sessions.WithBootstrapNowFunc(nowFunc))

	service, err := auth.NewAuthorizationService(
		auth.Repos{
			Users:     userRepo,
			Sessions:  sessionStore,
			Bootstrap: bootstrapStore,
			Clients:   clientRepo,
			Tenants:   tenantRepo,
		},
		codec,
		tokenManager,
		replay.NewMemoryGuard(replay.WithNowFunc(nowFunc)),
		ratelimit.NewMemoryLimiter(rateLimit, time.Minute),
		keyring,
	)
	require.NoError(t, err)

	return &fixture{
		service:   service,
		users:     userRepo,
		sessions:  sessionStore,
		bootstrap: bootstrapStore,
		clients:   clientRepo,
		tenants:   tenantRepo,
		clock:     clock,
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t, 1000)

	t.Run("session caller gets a code", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)
		require.NotEmpty(t, code)
	})

	t.Run("bootstrap caller gets a code", func(t *testing.T) {
		token, err := f.bootstrap.Issue("acme", "user-1", time.Minute)
		require.NoError(t, err)

		result, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:       "acme",
			ClientID:       "web-app",
			ResponseType:   auth.ResponseTypeCode,
			RedirectURI:    acmeRedirect,
			BootstrapToken: token,
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.Code)

		// Single use.
		_, err = f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:       "acme",
			ClientID:       "web-app",
			ResponseType:   auth.ResponseTypeCode,
			RedirectURI:    acmeRedirect,
			BootstrapToken: token,
		})
		require.ErrorIs(t, err, errors.ErrInvalidSession)
	})

	t.Run("state is echoed back", func(t *testing.T) {
		session := f.loginSession(t, "acme", "user-1")
		result, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "web-app",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  acmeRedirect,
			State:        "opaque-state",
			SessionID:    session.ID,
		})
		require.NoError(t, err)
		require.Equal(t, "opaque-state", result.State)
	})

	t.Run("unknown client", func(t *testing.T) {
		session := f.loginSession(t, "acme", "user-1")
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "nope",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  acmeRedirect,
			SessionID:    session.ID,
		})
		require.ErrorIs(t, err, errors.ErrUnknownClient)
	})

	t.Run("client from another tenant is unknown", func(t *testing.T) {
		session := f.loginSession(t, "acme", "user-1")
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "portal",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  globexRedirect,
			SessionID:    session.ID,
		})
		require.ErrorIs(t, err, errors.ErrUnknownClient)
	})

	t.Run("unregistered redirect uri", func(t *testing.T) {
		session := f.loginSession(t, "acme", "user-1")
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "web-app",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  "https://evil.example/callback",
			SessionID:    session.ID,
		})
		require.ErrorIs(t, err, errors.ErrInvalidRedirectURI)
	})

	t.Run("unsupported response type", func(t *testing.T) {
		session := f.loginSession(t, "acme", "user-1")
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "web-app",
			ResponseType: "token",
			RedirectURI:  acmeRedirect,
			SessionID:    session.ID,
		})
		require.ErrorIs(t, err, errors.ErrMalformedRequest)
	})

	t.Run("scope outside the client's grant", func(t *testing.T) {
		session := f.loginSession(t, "acme", "user-1")
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "web-app",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  acmeRedirect,
			Scope:        "openid admin",
			SessionID:    session.ID,
		})
		require.ErrorIs(t, err, errors.ErrMalformedRequest)
	})

	t.Run("no session and no bootstrap token", func(t *testing.T) {
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "web-app",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  acmeRedirect,
		})
		require.ErrorIs(t, err, errors.ErrInvalidSession)
	})

	t.Run("session from another tenant is invalid", func(t *testing.T) {
		session := f.loginSession(t, "globex", "user-9")
		_, err := f.service.Authorize(&auth.AuthorizationParameters{
			TenantID:     "acme",
			ClientID:     "web-app",
			ResponseType: auth.ResponseTypeCode,
			RedirectURI:  acmeRedirect,
			SessionID:    session.ID,
		})
		require.ErrorIs(t, err, errors.ErrInvalidSession)
	})
}

func TestToken(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	tokenRequest := func(code string) auth.TokenRequest {
		return auth.TokenRequest{
			TenantID:     "acme",
			GrantType:    auth.GrantTypeAuthorizationCode,
			Code:         code,
			ClientID:     "web-app",
			ClientSecret: clientSecret,
			RedirectURI:  acmeRedirect,
		}
	}

	t.Run("successful exchange", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)

		resp, err := f.service.Token(ctx, tokenRequest(code))
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
		require.NotEmpty(t, resp.IDToken)
		require.Equal(t, "Bearer", resp.TokenType)
		require.Equal(t, 900, resp.ExpiresIn)
		require.Equal(t, "openid profile email", resp.Scope)
	})

	t.Run("replayed code fails", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)

		_, err := f.service.Token(ctx, tokenRequest(code))
		require.NoError(t, err)

		_, err = f.service.Token(ctx, tokenRequest(code))
		require.ErrorIs(t, err, errors.ErrCodeAlreadyUsed)
		require.Contains(t, err.Error(), "already been used")
	})

	t.Run("expired code fails", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)
		f.advance(authcode.CodeLifetime + time.Second)

		_, err := f.service.Token(ctx, tokenRequest(code))
		require.ErrorIs(t, err, errors.ErrExpiredCode)
		f.advance(-(authcode.CodeLifetime + time.Second))
	})

	t.Run("redirect uri must match the authorization request", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)

		req := tokenRequest(code)
		req.RedirectURI = "https://evil.example/callback"
		_, err := f.service.Token(ctx, req)
		require.ErrorIs(t, err, errors.ErrRedirectURIMismatch)
		require.Contains(t, err.Error(), "redirect_uri")

		// The failed attempt did not burn the code.
		_, err = f.service.Token(ctx, tokenRequest(code))
		require.NoError(t, err)
	})

	t.Run("missing client secret", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)

		req := tokenRequest(code)
		req.ClientSecret = ""
		_, err := f.service.Token(ctx, req)
		require.ErrorIs(t, err, errors.ErrMissingClientSecret)
		require.Contains(t, err.Error(), "client_secret")
	})

	t.Run("wrong client secret does not burn the code", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)

		req := tokenRequest(code)
		req.ClientSecret = "wrong"
		_, err := f.service.Token(ctx, req)
		require.ErrorIs(t, err, errors.ErrInvalidClientCredentials)
		require.Contains(t, err.Error(), "Invalid client credentials")

		_, err = f.service.Token(ctx, tokenRequest(code))
		require.NoError(t, err)
	})

	t.Run("code issued to another client", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "spa", acmeRedirect)

		_, err := f.service.Token(ctx, tokenRequest(code))
		require.ErrorIs(t, err, errors.ErrInvalidCode)
	})

	t.Run("public client needs no secret", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "spa", acmeRedirect)

		resp, err := f.service.Token(ctx, auth.TokenRequest{
			TenantID:    "acme",
			GrantType:   auth.GrantTypeAuthorizationCode,
			Code:        code,
			ClientID:    "spa",
			RedirectURI: acmeRedirect,
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)

		req := tokenRequest(code)
		req.GrantType = "client_credentials"
		_, err := f.service.Token(ctx, req)
		require.ErrorIs(t, err, errors.ErrMalformedRequest)
	})

	t.Run("code minted for one tenant fails in another", func(t *testing.T) {
		code := f.authorize(t, "globex", "user-9", "portal", globexRedirect)

		req := auth.TokenRequest{
			TenantID:     "acme",
			GrantType:    auth.GrantTypeAuthorizationCode,
			Code:         code,
			ClientID:     "portal",
			ClientSecret: clientSecret,
			RedirectURI:  globexRedirect,
		}
		_, err := f.service.Token(ctx, req)
		require.ErrorIs(t, err, errors.ErrInvalidCode)
	})
}

func TestToken_RateLimit(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	req := auth.TokenRequest{
		TenantID:     "acme",
		GrantType:    auth.GrantTypeAuthorizationCode,
		Code:         "bogus",
		ClientID:     "web-app",
		ClientSecret: clientSecret,
		RedirectURI:  acmeRedirect,
	}

	for i := 0; i < 10; i++ {
		_, err := f.service.Token(ctx, req)
		require.Error(t, err)
		require.NotErrorIs(t, err, errors.ErrRateLimited, "request %d should reach validation", i+1)
	}

	_, err := f.service.Token(ctx, req)
	require.ErrorIs(t, err, errors.ErrRateLimited)

	// Another client in the same tenant is unaffected.
	other := req
	other.ClientID = "spa"
	other.ClientSecret = ""
	_, err = f.service.Token(ctx, other)
	require.NotErrorIs(t, err, errors.ErrRateLimited)
}

func TestUserInfo(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	exchange := func(t *testing.T, tenantID, userID, clientID, redirectURI string) string {
		t.Helper()
		code := f.authorize(t, tenantID, userID, clientID, redirectURI)
		resp, err := f.service.Token(ctx, auth.TokenRequest{
			TenantID:     tenantID,
			GrantType:    auth.GrantTypeAuthorizationCode,
			Code:         code,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  redirectURI,
		})
		require.NoError(t, err)
		return resp.AccessToken
	}

	t.Run("claims come from the presented token", func(t *testing.T) {
		accessToken := exchange(t, "acme", "user-1", "web-app", acmeRedirect)

		info, err := f.service.UserInfo(accessToken)
		require.NoError(t, err)
		require.Equal(t, "user-1", info["sub"])
		require.Equal(t, "alice@acme.com", info["email"])
		require.Equal(t, "Alice Archer", info["name"])
		require.Equal(t, "alice", info["preferred_username"])
		require.Equal(t, "acme", info["tenant_id"])
	})

	t.Run("concurrent users never cross over", func(t *testing.T) {
		aliceToken := exchange(t, "acme", "user-1", "web-app", acmeRedirect)
		bobToken := exchange(t, "acme", "user-2", "web-app", acmeRedirect)
		gloriaToken := exchange(t, "globex", "user-9", "portal", globexRedirect)

		aliceInfo, err := f.service.UserInfo(aliceToken)
		require.NoError(t, err)
		bobInfo, err := f.service.UserInfo(bobToken)
		require.NoError(t, err)
		gloriaInfo, err := f.service.UserInfo(gloriaToken)
		require.NoError(t, err)

		require.Equal(t, "user-1", aliceInfo["sub"])
		require.Equal(t, "user-2", bobInfo["sub"])
		require.Equal(t, "user-9", gloriaInfo["sub"])
		require.Equal(t, "acme", aliceInfo["tenant_id"])
		require.Equal(t, "globex", gloriaInfo["tenant_id"])
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := f.service.UserInfo("garbage")
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	})

	t.Run("id token is not accepted", func(t *testing.T) {
		code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)
		resp, err := f.service.Token(ctx, auth.TokenRequest{
			TenantID:     "acme",
			GrantType:    auth.GrantTypeAuthorizationCode,
			Code:         code,
			ClientID:     "web-app",
			ClientSecret: clientSecret,
			RedirectURI:  acmeRedirect,
		})
		require.NoError(t, err)

		_, err = f.service.UserInfo(resp.IDToken)
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t, 1000)

	t.Run("valid credentials", func(t *testing.T) {
		session, bootstrapToken, err := f.service.Login("acme", "alice@acme.com", "correct horse battery staple")
		require.NoError(t, err)
		require.Equal(t, "user-1", session.UserID)
		require.Equal(t, "acme", session.TenantID)
		require.NotEmpty(t, bootstrapToken)

		userID, err := f.bootstrap.Redeem("acme", bootstrapToken)
		require.NoError(t, err)
		require.Equal(t, "user-1", userID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := f.service.Login("acme", "alice@acme.com", "wrong")
		require.ErrorIs(t, err, errors.ErrInvalidClientCredentials)
	})

	t.Run("wrong tenant", func(t *testing.T) {
		_, _, err := f.service.Login("globex", "alice@acme.com", "correct horse battery staple")
		require.ErrorIs(t, err, errors.ErrInvalidClientCredentials)
	})

	t.Run("logout deletes the session", func(t *testing.T) {
		session, _, err := f.service.Login("acme", "alice@acme.com", "correct horse battery staple")
		require.NoError(t, err)

		require.NoError(t, f.service.Logout("acme", session.ID))
		_, err = f.sessions.Get("acme", session.ID)
		require.ErrorIs(t, err, errors.ErrInvalidSession)
	})
}

func TestIntrospectToken(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	code := f.authorize(t, "acme", "user-1", "web-app", acmeRedirect)
	resp, err := f.service.Token(ctx, auth.TokenRequest{
		TenantID:     "acme",
		GrantType:    auth.GrantTypeAuthorizationCode,
		Code:         code,
		ClientID:     "web-app",
		ClientSecret: clientSecret,
		RedirectURI:  acmeRedirect,
	})
	require.NoError(t, err)

	t.Run("active for an authenticated client", func(t *testing.T) {
		introspection, err := f.service.IntrospectToken("acme", resp.AccessToken, "web-app", clientSecret)
		require.NoError(t, err)
		require.True(t, introspection.Active)
		require.Equal(t, "acme", introspection.TenantID)
	})

	t.Run("inactive for bad client credentials", func(t *testing.T) {
		introspection, err := f.service.IntrospectToken("acme", resp.AccessToken, "web-app", "wrong")
		require.NoError(t, err)
		require.False(t, introspection.Active)
	})

	t.Run("inactive across tenants", func(t *testing.T) {
		introspection, err := f.service.IntrospectToken("globex", resp.AccessToken, "portal", clientSecret)
		require.NoError(t, err)
		require.False(t, introspection.Active)
	})
}
