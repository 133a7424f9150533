package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/huddleup/identity/auth"
	"github.com/huddleup/identity/internal/config"
	"github.com/huddleup/identity/tenants"
)

// Server exposes the authorization server's protocol surface over HTTP.
// All handlers resolve their tenant from the request host; nothing is
// derived from ambient state.
type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	auth    *auth.AuthorizationService
	tenants tenants.Repo
}

func New(cfg config.Config, authService *auth.AuthorizationService, tenantRepo tenants.Repo) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] authorization service is required")
	}
	if tenantRepo == nil {
		return nil, fmt.Errorf("[Server New] tenant repo is required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		auth:    authService,
		tenants: tenantRepo,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) initRoutes() {
	// Login / logout
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// OIDC discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))

	// OAuth2 / OIDC protocol endpoints
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.Introspect(), s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		log.Info().Str("route", route).Msg("registered")
	}
}

// tenantFromHost resolves the tenant from the request's subdomain relative
// to the configured base URL. A bare base host maps to the system tenant.
func (s *Server) tenantFromHost(host string) (*tenants.Tenant, error) {
	splitHost := strings.SplitN(host, ":", 2)
	host = splitHost[0]

	domainURL := s.config.GetBaseURL()
	splitDomain := strings.SplitN(domainURL, "://", 2)

	baseDomainName := splitDomain[0]
	if len(splitDomain) > 1 {
		baseDomainName = splitDomain[1]
	}

	splitBaseDomain := strings.SplitN(baseDomainName, ":", 2)
	baseHostName := splitBaseDomain[0]

	tenantID := strings.Replace(host, baseHostName, "", 1)
	tenantID = strings.Trim(tenantID, ".")

	if tenantID == "" {
		tenantID = s.config.GetSystemTenantID()
	}

	t, err := s.tenants.Get(tenantID)
	if err != nil {
		return nil, fmt.Errorf("[server tenantFromHost] unknown tenant: %w", err)
	}
	return t, nil
}
