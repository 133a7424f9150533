// Package replay records which authorization code identifiers have been
// consumed. Existence of a record is authoritative for "already used".
package replay

import (
	"context"
	"time"
)

// Guard is a keyed consumed-code store with TTL equal to the code lifetime.
//
// Consume is an atomic check-and-insert: for any codeID, exactly one call
// returns true no matter how many run concurrently. A plain read-then-write
// is a race and must not back this interface.
type Guard interface {
	Consume(ctx context.Context, tenantID, codeID string, ttl time.Duration) (bool, error)
}
