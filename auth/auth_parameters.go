package auth

// ResponseType is the OAuth2 authorization response type. Only "code" is
// supported; everything else is rejected up front.
type ResponseType string

const ResponseTypeCode ResponseType = "code"

// AuthorizationParameters holds the query parameters of an /authorize
// request plus the caller's credential (session cookie or bootstrap token).
// TenantID is resolved from the request host and threaded explicitly.
type AuthorizationParameters struct {
	TenantID     string
	ClientID     string
	ResponseType ResponseType
	RedirectURI  string
	Scope        string
	State        string
	Nonce        string

	// Exactly one of these identifies the caller.
	SessionID      string
	BootstrapToken string
}

// AuthorizeResult carries what the handler needs to build the redirect back
// to the client. State is echoed only when the client supplied one.
type AuthorizeResult struct {
	RedirectURI string
	Code        string
	State       string
}

// TokenRequest holds the form parameters of a /token request.
type TokenRequest struct {
	TenantID     string
	GrantType    string
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// RemoteAddr rate-limits callers that present no client_id.
	RemoteAddr string
}

// GrantTypeAuthorizationCode is the only supported grant type.
const GrantTypeAuthorizationCode = "authorization_code"
