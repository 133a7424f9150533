// Package authcode signs and verifies short-lived, single-use authorization
// codes as self-contained JWTs. The entire state of a code is embedded in
// the signed token; the server keeps no code table, only the replay guard
// entry written at redemption.
package authcode

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	autherrors "github.com/huddleup/identity/internal/errors"
	"github.com/huddleup/identity/tenants"
	"github.com/huddleup/identity/token/keys"
)

// CodeLifetime is the fixed redemption window. ExpiresAt - IssuedAt is
// always exactly this value.
const CodeLifetime = 60 * time.Second

// tokenUse distinguishes authorization codes from access/ID tokens signed
// with the same tenant key.
const tokenUse = "authorization_code"

// Claims is the full state of an authorization code.
type Claims struct {
	CodeID      string
	TenantID    string
	UserID      string
	ClientID    string
	RedirectURI string
	Scope       string
	State       string
	Nonce       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Codec issues and verifies signed authorization codes using per-tenant
// signing keys.
type Codec struct {
	tenantRepo tenants.Repo
	keyring    *keys.Keyring
	nowFunc    func() time.Time
}

type CodecOption func(*Codec)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(tenantRepo tenants.Repo, keyring *keys.Keyring, options ...CodecOption) (*Codec, error) {
	if tenantRepo == nil {
		return nil, errors.New("[NewCodec] tenant repo is required")
	}
	if keyring == nil {
		return nil, errors.New("[NewCodec] keyring is required")
	}

	c := &Codec{
		tenantRepo: tenantRepo,
		keyring:    keyring,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Issue mints a signed code bound to (tenant, user, client, redirectURI,
// scope, state, nonce) with a fixed 60-second expiry. The filled-in Claims
// are returned alongside the signed token.
func (c *Codec) Issue(claims Claims) (string, Claims, error) {
	tenant, err := c.tenantRepo.Get(claims.TenantID)
	if err != nil {
		return "", Claims{}, errors.Wrap(err, "[Codec.Issue] tenant lookup")
	}
	signer, err := c.keyring.SignerFor(tenant.ID)
	if err != nil {
		return "", Claims{}, errors.Wrap(err, "[Codec.Issue] signer lookup")
	}

	now := c.nowFunc()
	claims.CodeID = uuid.New().String()
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(CodeLifetime)

	jwtClaims := jwt.MapClaims{
		"iss":          tenant.Issuer,
		"jti":          claims.CodeID,
		"sub":          claims.UserID,
		"tenant":       claims.TenantID,
		"client_id":    claims.ClientID,
		"redirect_uri": claims.RedirectURI,
		"scope":        claims.Scope,
		"token_use":    tokenUse,
		"iat":          claims.IssuedAt.Unix(),
		"exp":          claims.ExpiresAt.Unix(),
	}
	if claims.State != "" {
		jwtClaims["state"] = claims.State
	}
	if claims.Nonce != "" {
		jwtClaims["nonce"] = claims.Nonce
	}

	signed, err := signer.Sign(jwtClaims)
	if err != nil {
		return "", Claims{}, errors.Wrap(err, "[Codec.Issue] sign")
	}
	return signed, claims, nil
}

// Verify checks signature, expiry, and structural well-formedness of a raw
// code presented for tenantID. A code signed under a different tenant's key
// fails the signature check. Returns ErrExpiredCode for codes past their
// window and ErrInvalidCode for everything else that fails.
func (c *Codec) Verify(tenantID, rawCode string) (Claims, error) {
	tenant, err := c.tenantRepo.Get(tenantID)
	if err != nil {
		return Claims{}, errors.Wrap(autherrors.ErrInvalidCode, "unknown tenant")
	}
	signer, err := c.keyring.SignerFor(tenant.ID)
	if err != nil {
		return Claims{}, errors.Wrap(autherrors.ErrInvalidCode, "no signer")
	}

	parsed, err := jwt.Parse(rawCode, signer.GetVerificationKey,
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tenant.Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, autherrors.ErrExpiredCode
		}
		return Claims{}, autherrors.ErrInvalidCode
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, autherrors.ErrInvalidCode
	}

	claims := claimsFromMap(mapClaims)
	if claims.CodeID == "" || claims.UserID == "" || claims.ClientID == "" || claims.RedirectURI == "" {
		return Claims{}, autherrors.ErrInvalidCode
	}
	if use, _ := mapClaims["token_use"].(string); use != tokenUse {
		return Claims{}, autherrors.ErrInvalidCode
	}
	if claims.TenantID != tenantID {
		return Claims{}, autherrors.ErrInvalidCode
	}
	return claims, nil
}

func claimsFromMap(m jwt.MapClaims) Claims {
	claims := Claims{}
	claims.CodeID, _ = m["jti"].(string)
	claims.TenantID, _ = m["tenant"].(string)
	claims.UserID, _ = m["sub"].(string)
	claims.ClientID, _ = m["client_id"].(string)
	claims.RedirectURI, _ = m["redirect_uri"].(string)
	claims.Scope, _ = m["scope"].(string)
	claims.State, _ = m["state"].(string)
	claims.Nonce, _ = m["nonce"].(string)

	if iat, ok := m["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := m["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return claims
}
