package errors

import (
	"errors"
	"fmt"
)

// Protocol error taxonomy for the authorization server. Services wrap these
// with request context; handlers map them to HTTP statuses.
var (
	// Request errors
	ErrMalformedRequest = errors.New("invalid request")

	// Client errors
	ErrUnknownClient            = errors.New("unknown client")
	ErrInvalidRedirectURI       = errors.New("redirect_uri is not registered for this client")
	ErrRedirectURIMismatch      = errors.New("redirect_uri does not match the authorization request")
	ErrMissingClientSecret      = errors.New("client_secret is required for confidential clients")
	ErrInvalidClientCredentials = errors.New("Invalid client credentials")

	// Session errors
	ErrInvalidSession = errors.New("invalid or expired session")

	// Authorization code errors
	ErrInvalidCode     = errors.New("invalid authorization code")
	ErrExpiredCode     = errors.New("authorization code expired")
	ErrCodeAlreadyUsed = errors.New("authorization code has already been used")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")

	// Tenant errors
	ErrTenantNotFound = errors.New("tenant not found")

	// Throttling
	ErrRateLimited = errors.New("rate limit exceeded")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
