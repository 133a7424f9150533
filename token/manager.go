package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	autherrors "github.com/huddleup/identity/internal/errors"
	"github.com/huddleup/identity/tenants"
	"github.com/huddleup/identity/token/keys"
	"github.com/huddleup/identity/users"
)

// Introspection represents the metadata of an access token. The 'active'
// field indicates the state of the token; if false, other fields may not be
// populated.
type Introspection struct {
	Active   bool    `json:"active"`
	Aud      *string `json:"aud,omitempty"`       // Audience - the client ID the token was issued to
	Exp      *int64  `json:"exp,omitempty"`       // Expiration
	Iat      *int64  `json:"iat,omitempty"`       // Issued at time
	Iss      *string `json:"iss,omitempty"`       // Issuer of the token
	Sub      *string `json:"sub,omitempty"`       // User's unique ID
	Scope    string  `json:"scope,omitempty"`     // Granted scopes
	TenantID string  `json:"tenant_id,omitempty"` // Tenant the token belongs to
}

// Response is the OAuth2 token endpoint response (RFC 6749).
type Response struct {
	AccessToken string `json:"access_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

const accessTokenUse = "access"

// Manager mints and verifies access and ID tokens. Tokens are stateless:
// no server-side row backs them and every claim returned on verification is
// embedded in the presented token itself.
type Manager struct {
	tenantRepo        tenants.Repo
	keyring           *keys.Keyring
	accessTokenExpiry time.Duration
	idTokenExpiry     time.Duration
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, idTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(tenantRepo tenants.Repo, keyring *keys.Keyring, options ...ManagerOption) (*Manager, error) {
	if tenantRepo == nil {
		return nil, errors.New("[token.New] tenant repo is required")
	}
	if keyring == nil {
		return nil, errors.New("[token.New] keyring is required")
	}

	m := &Manager{
		tenantRepo: tenantRepo,
		keyring:    keyring,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.idTokenExpiry == 0 {
		m.idTokenExpiry = time.Hour
	}
	return m, nil
}

// AccessTokenExpiry is exposed for the expires_in response field.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// CreateAccessToken mints an access token bound to the code's
// (tenant, user, client, scope).
func (m *Manager) CreateAccessToken(user *users.User, tenantID, clientID, scope string) (string, error) {
	tenant, err := m.tenantRepo.Get(tenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateAccessToken] tenant lookup")
	}
	signer, err := m.keyring.SignerFor(tenant.ID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateAccessToken] signer lookup")
	}

	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss":       tenant.Issuer,
		"sub":       user.ID,
		"aud":       clientID,
		"tenant":    tenantID,
		"scope":     scope,
		"token_use": accessTokenUse,
		"iat":       now.Unix(),
		"exp":       now.Add(m.accessTokenExpiry).Unix(),
		"jti":       uuid.New().String(),
	}

	return signer.Sign(claims)
}

// CreateIDToken mints an OpenID Connect ID token. Identity claims only;
// authorization data belongs in the access token.
func (m *Manager) CreateIDToken(user *users.User, tenantID, clientID, nonce string) (string, error) {
	tenant, err := m.tenantRepo.Get(tenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken] tenant lookup")
	}
	signer, err := m.keyring.SignerFor(tenant.ID)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken] signer lookup")
	}

	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss":                tenant.Issuer,
		"sub":                user.ID,
		"aud":                clientID,
		"email":              user.Email,
		"name":               user.FullName(),
		"preferred_username": user.Username,
		"tenant":             tenantID,
		"iat":                now.Unix(),
		"exp":                now.Add(m.idTokenExpiry).Unix(),
		"jti":                uuid.New().String(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	return signer.Sign(claims)
}

// Introspect verifies a raw access token and returns its embedded claims.
// The tenant claim is first read unverified to pick the verification key;
// the claim is then covered by the signature check, so a token minted for a
// different tenant cannot borrow another tenant's key.
func (m *Manager) Introspect(rawToken string) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &Introspection{Active: false}, nil
	}

	unverifiedToken, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}
	unverifiedClaims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}
	tenantID, _ := unverifiedClaims["tenant"].(string)

	tenant, err := m.tenantRepo.Get(tenantID)
	if err != nil {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}
	signer, err := m.keyring.SignerFor(tenant.ID)
	if err != nil {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}

	parsed, err := jwt.Parse(rawToken, signer.GetVerificationKey,
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tenant.Issuer),
	)
	if err != nil || !parsed.Valid {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}
	if use, _ := claims["token_use"].(string); use != accessTokenUse {
		return &Introspection{Active: false}, autherrors.ErrInvalidToken
	}

	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	aud, _ := claims["aud"].(string)
	scope, _ := claims["scope"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	iatInt := int64(iat)
	expInt := int64(exp)

	return &Introspection{
		Active:   true,
		Aud:      &aud,
		Exp:      &expInt,
		Iat:      &iatInt,
		Iss:      &iss,
		Sub:      &sub,
		Scope:    scope,
		TenantID: tenantID,
	}, nil
}
