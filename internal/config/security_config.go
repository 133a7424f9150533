package config

import (
	"strconv"
	"time"
)

const tokenRateLimitVar = "TOKEN_RATE_LIMIT"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetTokenRateLimit() int
	GetTokenRateWindow() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetMaxSessionAge() time.Duration {
	return 30 * time.Minute
}

// GetTokenRateLimit is the number of token-endpoint requests a single
// client may make within GetTokenRateWindow before receiving 429s.
func (Security) GetTokenRateLimit() int {
	if v, err := strconv.Atoi(GetEnv(tokenRateLimitVar, "")); err == nil && v > 0 {
		return v
	}
	return 10
}

func (Security) GetTokenRateWindow() time.Duration {
	return time.Minute
}
