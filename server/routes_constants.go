package server

// Protocol-facing routes.
const (
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/jwks"
	RouteOAuth2Authorize       = "/authorize"
	RouteOAuth2Token           = "/token"
	RouteUserInfo              = "/userinfo"
	RouteOAuth2Introspect      = "/introspect"
	RouteLogin                 = "/login"
	RouteLogout                = "/logout"
)

// Cookie names. The session cookie is always accompanied by the tenant
// cookie; a session id alone never identifies anyone.
const (
	CookieSessionID = "session_id"
	CookieTenantID  = "tenant_id"
)
