package config

import "time"

type OAuthConfig interface {
	GetAuthCodeLifetime() time.Duration
	GetBootstrapTokenLifetime() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetAuthCodeLifetime is the fixed window within which an authorization
// code must be redeemed. Codes are single use regardless of lifetime.
func (OAuth) GetAuthCodeLifetime() time.Duration {
	return 60 * time.Second
}

func (OAuth) GetBootstrapTokenLifetime() time.Duration {
	return 60 * time.Second
}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}

func (OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return 1 * time.Hour
}
