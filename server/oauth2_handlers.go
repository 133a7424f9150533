package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/huddleup/identity/auth"
	"github.com/huddleup/identity/internal/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

// WellKnownOpenIDConfig serves the OIDC discovery document. Static per
// tenant; regenerated only when signing keys rotate.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		baseURL := tenant.Issuer

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteOAuth2Authorize,
			"token_endpoint":         baseURL + RouteOAuth2Token,
			"userinfo_endpoint":      baseURL + RouteUserInfo,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"introspection_endpoint": baseURL + RouteOAuth2Introspect,

			"response_types_supported": []string{"code"},
			"response_modes_supported": []string{"query"},
			"subject_types_supported":  []string{"public"},

			"id_token_signing_alg_values_supported": []string{"RS256"},

			"scopes_supported": []string{
				"openid",  // Returns ID token
				"profile", // Returns name, preferred_username
				"email",   // Returns email
			},

			"token_endpoint_auth_methods_supported": []string{
				"client_secret_post", // Credentials in POST body
				"none",               // Public clients
			},

			"grant_types_supported": []string{"authorization_code"},

			"claims_supported": []string{
				"sub",
				"email",
				"name",
				"preferred_username",
				"tenant_id",
			},
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		jwks, err := s.auth.GetJWKS(tenant.ID)
		if err != nil {
			http.Error(w, "failed to get JWKS", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Authorize begins the authorization-code flow
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		params := s.parseAuthorizationParameters(tenant.ID, r)

		result, err := s.auth.Authorize(params)
		if err != nil {
			s.authorizeError(w, r, params, err)
			return
		}

		// Redirect back to the client with code (and state when supplied).
		u, parseErr := url.Parse(result.RedirectURI)
		if parseErr != nil {
			writeJSONError(w, "server_error", "invalid redirect URI", http.StatusInternalServerError)
			return
		}
		q := u.Query()
		q.Set("code", result.Code)
		if result.State != "" {
			q.Set("state", result.State)
		}
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	}
}

// authorizeError maps authorize failures. Session failures from a browser
// degrade to a login redirect; everything else is a terminal status. There
// is never a fallback identity.
func (s *Server) authorizeError(w http.ResponseWriter, r *http.Request, params *auth.AuthorizationParameters, err error) {
	log.Err(err).Str("tenant", params.TenantID).Str("client", params.ClientID).Msg("authorize rejected")

	if errors.Is(err, errors.ErrInvalidSession) {
		// API callers (bootstrap token or JSON accept) get a hard 401.
		if params.BootstrapToken != "" || !strings.Contains(r.Header.Get("Accept"), "text/html") {
			writeJSONError(w, "invalid_session", err.Error(), http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return
	}

	code, status := errorCodeAndStatus(err)
	writeJSONError(w, code, err.Error(), status)
}

// Token exchanges an authorization code for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := auth.TokenRequest{
			TenantID:     tenant.ID,
			GrantType:    r.FormValue("grant_type"),
			Code:         r.FormValue("code"),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			RedirectURI:  r.FormValue("redirect_uri"),
			RemoteAddr:   r.RemoteAddr,
		}

		tokenResponse, err := s.auth.Token(r.Context(), tokenReq)
		if err != nil {
			log.Err(err).Str("tenant", tenant.ID).Str("client", tokenReq.ClientID).Msg("token exchange rejected")
			code, status := errorCodeAndStatus(err)
			writeJSONError(w, code, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// UserInfo returns claims for the presented bearer token
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, "invalid_token", "missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}

		userInfo, err := s.auth.UserInfo(rawToken)
		if err != nil {
			writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(userInfo)
	}
}

// Introspect validates tokens for authenticated clients
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		rawToken := r.FormValue("token")
		if rawToken == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}

		introspection, err := s.auth.IntrospectToken(tenant.ID, rawToken, r.FormValue("client_id"), r.FormValue("client_secret"))
		if err != nil {
			writeJSONError(w, "server_error", err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(introspection)
	}
}

// Helper functions

func (s *Server) parseAuthorizationParameters(tenantID string, r *http.Request) *auth.AuthorizationParameters {
	q := r.URL.Query()
	params := &auth.AuthorizationParameters{
		TenantID:       tenantID,
		ClientID:       q.Get("client_id"),
		ResponseType:   auth.ResponseType(q.Get("response_type")),
		RedirectURI:    q.Get("redirect_uri"),
		Scope:          q.Get("scope"),
		State:          q.Get("state"),
		Nonce:          q.Get("nonce"),
		BootstrapToken: q.Get("bootstrap_token"),
	}

	// The session cookie only counts when its tenant cookie agrees with
	// the tenant resolved from the host.
	if sessionCookie, err := r.Cookie(CookieSessionID); err == nil {
		if tenantCookie, err := r.Cookie(CookieTenantID); err == nil && tenantCookie.Value == tenantID {
			params.SessionID = sessionCookie.Value
		}
	}
	return params
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// errorCodeAndStatus maps the service error taxonomy to OAuth2 error codes
// and HTTP statuses.
func errorCodeAndStatus(err error) (string, int) {
	switch {
	case errors.Is(err, errors.ErrRateLimited):
		return "rate_limited", http.StatusTooManyRequests
	case errors.Is(err, errors.ErrMalformedRequest):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, errors.ErrUnknownClient),
		errors.Is(err, errors.ErrMissingClientSecret),
		errors.Is(err, errors.ErrInvalidClientCredentials):
		return "invalid_client", http.StatusUnauthorized
	case errors.Is(err, errors.ErrInvalidRedirectURI),
		errors.Is(err, errors.ErrRedirectURIMismatch),
		errors.Is(err, errors.ErrInvalidCode),
		errors.Is(err, errors.ErrExpiredCode),
		errors.Is(err, errors.ErrCodeAlreadyUsed):
		return "invalid_grant", http.StatusUnauthorized
	case errors.Is(err, errors.ErrInvalidSession),
		errors.Is(err, errors.ErrInvalidToken):
		return "invalid_session", http.StatusUnauthorized
	}
	return "server_error", http.StatusInternalServerError
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
