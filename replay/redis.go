package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard is a Redis-backed Guard for multi-process deployments.
// SET NX with a TTL gives the conditional insert; Redis expiry replaces the
// in-process sweep.
type RedisGuard struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisGuard creates a guard on an existing client. Pass a miniredis
// backed client in tests.
func NewRedisGuard(client redis.UniversalClient, keyPrefix string) *RedisGuard {
	return &RedisGuard{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

var _ Guard = (*RedisGuard)(nil)

func (g *RedisGuard) Consume(ctx context.Context, tenantID, codeID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%sconsumed:%s:%s", g.keyPrefix, tenantID, codeID)

	inserted, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard setnx: %w", err)
	}
	return inserted, nil
}
