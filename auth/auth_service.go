package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/huddleup/identity/authcode"
	"github.com/huddleup/identity/clients"
	autherrors "github.com/huddleup/identity/internal/errors"
	"github.com/huddleup/identity/ratelimit"
	"github.com/huddleup/identity/replay"
	"github.com/huddleup/identity/sessions"
	"github.com/huddleup/identity/tenants"
	"github.com/huddleup/identity/token"
	"github.com/huddleup/identity/token/keys"
	"github.com/huddleup/identity/users"
)

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Users     users.Repo             // User-lookup collaborator
	Sessions  sessions.Store         // Login sessions
	Bootstrap sessions.BootstrapStore // Single-use bootstrap tokens
	Clients   clients.Repo           // Per-tenant OAuth2 client registry
	Tenants   tenants.Repo           // Tenant catalog
}

// AuthorizationService implements the protocol-facing operations of the
// authorization server: authorize, token exchange, userinfo, introspection.
type AuthorizationService struct {
	repos        Repos
	codec        *authcode.Codec
	tokens       *token.Manager
	guard        replay.Guard
	limiter      ratelimit.Limiter
	keyring      *keys.Keyring
	sessionTTL   time.Duration
	bootstrapTTL time.Duration
}

// AuthorizationServiceOption modifies the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithSessionTTL sets the login session lifetime.
func WithSessionTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.sessionTTL = ttl
	}
}

// WithBootstrapTTL sets the bootstrap token lifetime.
func WithBootstrapTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.bootstrapTTL = ttl
	}
}

// NewAuthorizationService initializes a new AuthorizationService with
// required dependencies.
func NewAuthorizationService(
	repos Repos,
	codec *authcode.Codec,
	tokens *token.Manager,
	guard replay.Guard,
	limiter ratelimit.Limiter,
	keyring *keys.Keyring,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions store is required")
	}
	if repos.Bootstrap == nil {
		return nil, errors.New("[NewAuthorizationService] Bootstrap store is required")
	}
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.Tenants == nil {
		return nil, errors.New("[NewAuthorizationService] Tenants repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewAuthorizationService] code codec is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewAuthorizationService] token manager is required")
	}
	if guard == nil {
		return nil, errors.New("[NewAuthorizationService] replay guard is required")
	}
	if limiter == nil {
		return nil, errors.New("[NewAuthorizationService] rate limiter is required")
	}
	if keyring == nil {
		return nil, errors.New("[NewAuthorizationService] keyring is required")
	}

	authService := &AuthorizationService{
		repos:        repos,
		codec:        codec,
		tokens:       tokens,
		guard:        guard,
		limiter:      limiter,
		keyring:      keyring,
		sessionTTL:   30 * time.Minute,
		bootstrapTTL: authcode.CodeLifetime,
	}
	for _, opt := range options {
		opt(authService)
	}
	return authService, nil
}

// Authorize runs the authorization-code flow up to the redirect carrying
// the signed code. Client and redirect_uri are validated before the
// caller's session is ever touched, so malicious redirects never reach
// session logic. An invalid session never falls back to another identity.
func (as *AuthorizationService) Authorize(params *AuthorizationParameters) (*AuthorizeResult, error) {
	if params.ClientID == "" || params.RedirectURI == "" {
		return nil, errors.Wrap(autherrors.ErrMalformedRequest, "[Authorize] client_id and redirect_uri are required")
	}
	if params.ResponseType != ResponseTypeCode {
		return nil, errors.Wrap(autherrors.ErrMalformedRequest, "[Authorize] response_type must be code")
	}

	client, err := as.repos.Clients.Get(params.TenantID, params.ClientID)
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrUnknownClient, "[Authorize] client lookup")
	}
	if !client.ValidateRedirectURI(params.RedirectURI) {
		return nil, errors.Wrap(autherrors.ErrInvalidRedirectURI, "[Authorize] redirect_uri")
	}
	if err := client.ValidateScopes(params.Scope); err != nil {
		return nil, errors.Wrap(autherrors.ErrMalformedRequest, "[Authorize] scope")
	}

	userID, err := as.resolveCaller(params)
	if err != nil {
		return nil, err
	}

	code, _, err := as.codec.Issue(authcode.Claims{
		TenantID:    params.TenantID,
		UserID:      userID,
		ClientID:    params.ClientID,
		RedirectURI: params.RedirectURI,
		Scope:       params.Scope,
		State:       params.State,
		Nonce:       params.Nonce,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Authorize] issue code")
	}

	return &AuthorizeResult{
		RedirectURI: params.RedirectURI,
		Code:        code,
		State:       params.State,
	}, nil
}

// resolveCaller maps the session cookie or bootstrap token to a user id
// within the request tenant.
func (as *AuthorizationService) resolveCaller(params *AuthorizationParameters) (string, error) {
	if params.BootstrapToken != "" {
		userID, err := as.repos.Bootstrap.Redeem(params.TenantID, params.BootstrapToken)
		if err != nil {
			return "", errors.Wrap(autherrors.ErrInvalidSession, "[Authorize] bootstrap token")
		}
		return userID, nil
	}

	if params.SessionID == "" {
		return "", errors.Wrap(autherrors.ErrInvalidSession, "[Authorize] no session")
	}
	session, err := as.repos.Sessions.Get(params.TenantID, params.SessionID)
	if err != nil {
		return "", errors.Wrap(autherrors.ErrInvalidSession, "[Authorize] session lookup")
	}
	if session.TenantID != params.TenantID {
		return "", errors.Wrap(autherrors.ErrInvalidSession, "[Authorize] session tenant mismatch")
	}
	return session.UserID, nil
}

// Token redeems an authorization code for tokens. Order matters: the rate
// limit runs before any validation, and the replay-guard insert is the last
// irreversible step, after every other check has passed. Two concurrent
// redemptions of the same code yield exactly one success.
func (as *AuthorizationService) Token(ctx context.Context, req TokenRequest) (*token.Response, error) {
	allowed, err := as.limiter.Allow(ctx, rateKey(req))
	if err != nil {
		return nil, errors.Wrap(err, "[Token] rate limiter")
	}
	if !allowed {
		return nil, errors.Wrap(autherrors.ErrRateLimited, "[Token] client throttled")
	}

	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, errors.Wrap(autherrors.ErrMalformedRequest, "[Token] unsupported grant_type")
	}
	if req.Code == "" || req.ClientID == "" {
		return nil, errors.Wrap(autherrors.ErrMalformedRequest, "[Token] code and client_id are required")
	}

	code, err := as.codec.Verify(req.TenantID, req.Code)
	if err != nil {
		return nil, errors.Wrap(err, "[Token] code verification")
	}

	if req.RedirectURI != code.RedirectURI {
		return nil, errors.Wrap(autherrors.ErrRedirectURIMismatch, "[Token] redirect_uri")
	}
	if req.ClientID != code.ClientID {
		return nil, errors.Wrap(autherrors.ErrInvalidCode, "[Token] code issued to a different client")
	}

	client, err := as.repos.Clients.Get(req.TenantID, req.ClientID)
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrUnknownClient, "[Token] client lookup")
	}
	if err := authenticateClient(client, req.ClientSecret); err != nil {
		return nil, err
	}

	// Last irreversible step: burn the code only after all validation.
	consumed, err := as.guard.Consume(ctx, req.TenantID, code.CodeID, authcode.CodeLifetime)
	if err != nil {
		return nil, errors.Wrap(err, "[Token] replay guard")
	}
	if !consumed {
		return nil, errors.Wrap(autherrors.ErrCodeAlreadyUsed, "[Token] replayed code")
	}

	user, err := as.repos.Users.FindByID(code.TenantID, code.UserID)
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrInvalidCode, "[Token] user lookup")
	}

	accessToken, err := as.tokens.CreateAccessToken(user, code.TenantID, code.ClientID, code.Scope)
	if err != nil {
		return nil, errors.Wrap(err, "[Token] create access token")
	}
	idToken, err := as.tokens.CreateIDToken(user, code.TenantID, code.ClientID, code.Nonce)
	if err != nil {
		return nil, errors.Wrap(err, "[Token] create id token")
	}

	return &token.Response{
		AccessToken: accessToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(as.tokens.AccessTokenExpiry().Seconds()),
		Scope:       code.Scope,
	}, nil
}

func rateKey(req TokenRequest) string {
	if req.ClientID != "" {
		return req.TenantID + ":" + req.ClientID
	}
	return req.TenantID + ":" + req.RemoteAddr
}

// authenticateClient checks the presented secret against the registration.
// Public clients require no secret.
func authenticateClient(client *clients.Client, clientSecret string) error {
	if client.IsPublic() {
		return nil
	}
	if clientSecret == "" {
		return errors.Wrap(autherrors.ErrMissingClientSecret, "[Token] confidential client")
	}
	if !client.CheckSecret(clientSecret) {
		return errors.Wrap(autherrors.ErrInvalidClientCredentials, "[Token] secret mismatch")
	}
	return nil
}

// Login checks credentials and creates a tenant-scoped login session plus a
// single-use bootstrap token for API callers.
func (as *AuthorizationService) Login(tenantID, email, password string) (sessions.LoginSession, string, error) {
	user, err := as.repos.Users.FindByEmail(tenantID, email)
	if err != nil {
		return sessions.LoginSession{}, "", errors.Wrap(autherrors.ErrInvalidClientCredentials, "[Login] user lookup")
	}
	if user.Blocked || !user.Verified {
		return sessions.LoginSession{}, "", errors.Wrap(autherrors.ErrInvalidClientCredentials, "[Login] user state")
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return sessions.LoginSession{}, "", errors.Wrap(autherrors.ErrInvalidClientCredentials, "[Login] password")
	}

	session, err := as.repos.Sessions.Create(tenantID, user.ID, as.sessionTTL)
	if err != nil {
		return sessions.LoginSession{}, "", errors.Wrap(err, "[Login] create session")
	}
	bootstrapToken, err := as.repos.Bootstrap.Issue(tenantID, user.ID, as.bootstrapTTL)
	if err != nil {
		return sessions.LoginSession{}, "", errors.Wrap(err, "[Login] issue bootstrap token")
	}
	return session, bootstrapToken, nil
}

// Logout deletes the session. Deleting an unknown session is not an error.
func (as *AuthorizationService) Logout(tenantID, sessionID string) error {
	return as.repos.Sessions.Delete(tenantID, sessionID)
}

// UserInfo returns OIDC claims for a bearer access token. Every claim is
// traceable to a field embedded in the presented token: the user lookup is
// keyed by the token's own tenant and subject, never by any ambient
// "current session" state. Concurrent authentications by different users
// therefore cannot cross over.
func (as *AuthorizationService) UserInfo(rawToken string) (map[string]interface{}, error) {
	introspection, err := as.tokens.Introspect(rawToken)
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[UserInfo] introspection")
	}
	if !introspection.Active || introspection.Sub == nil || *introspection.Sub == "" {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[UserInfo] inactive token")
	}

	user, err := as.repos.Users.FindByID(introspection.TenantID, *introspection.Sub)
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[UserInfo] user lookup")
	}

	return map[string]interface{}{
		"sub":                user.ID,
		"email":              user.Email,
		"name":               user.FullName(),
		"preferred_username": user.Username,
		"tenant_id":          introspection.TenantID,
	}, nil
}

// IntrospectToken validates a token on behalf of a client. Bad client
// credentials yield an inactive result rather than an error, per RFC 7662's
// guidance not to leak token state to unauthenticated callers.
func (as *AuthorizationService) IntrospectToken(tenantID, rawToken, clientID, clientSecret string) (*token.Introspection, error) {
	client, err := as.repos.Clients.Get(tenantID, clientID)
	if err != nil {
		return &token.Introspection{Active: false}, nil
	}
	if err := authenticateClient(client, clientSecret); err != nil {
		return &token.Introspection{Active: false}, nil
	}

	introspection, err := as.tokens.Introspect(rawToken)
	if err != nil {
		return &token.Introspection{Active: false}, nil
	}
	if introspection.TenantID != tenantID {
		return &token.Introspection{Active: false}, nil
	}
	return introspection, nil
}

// GetJWKS returns the tenant's public signing keys.
func (as *AuthorizationService) GetJWKS(tenantID string) (*keys.JWKS, error) {
	return as.keyring.JWKSFor(tenantID)
}
