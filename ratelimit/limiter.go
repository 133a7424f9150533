// Package ratelimit throttles the token endpoint per client.
package ratelimit

import "context"

// Limiter answers whether a keyed caller may proceed. Keys are
// "tenantID:clientID" (falling back to the caller address when no client_id
// is presented). Exceeding the threshold fails closed with 429 upstream.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
