package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID      string `json:"session_id"`
	BootstrapToken string `json:"bootstrap_token"`
	ExpiresAt      int64  `json:"expires_at"`
}

// LoginHandler authenticates a user within the host's tenant and creates a
// login session. Browser callers get the session cookie pair; API callers
// can take the returned bootstrap token straight to /authorize.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "malformed JSON body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			writeJSONError(w, "invalid_request", "email and password are required", http.StatusBadRequest)
			return
		}

		session, bootstrapToken, err := s.auth.Login(tenant.ID, req.Email, req.Password)
		if err != nil {
			log.Err(err).Str("tenant", tenant.ID).Msg("login rejected")
			writeJSONError(w, "invalid_credentials", "invalid email or password", http.StatusUnauthorized)
			return
		}

		s.setSessionCookies(w, tenant.ID, session.ID, session.ExpiresAt)

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(loginResponse{
			SessionID:      session.ID,
			BootstrapToken: bootstrapToken,
			ExpiresAt:      session.ExpiresAt.Unix(),
		})
	}
}

// LogoutHandler deletes the login session and clears its cookies. Logging
// out without a session is a no-op, not an error.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.tenantFromHost(r.Host)
		if err != nil {
			http.Error(w, "unknown tenant", http.StatusBadRequest)
			return
		}

		if sessionCookie, err := r.Cookie(CookieSessionID); err == nil {
			if err := s.auth.Logout(tenant.ID, sessionCookie.Value); err != nil {
				log.Err(err).Str("tenant", tenant.ID).Msg("logout")
			}
		}
		s.clearSessionCookies(w)

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) setSessionCookies(w http.ResponseWriter, tenantID, sessionID string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionID,
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieTenantID,
		Value:    tenantID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{CookieSessionID, CookieTenantID} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}
