package replay_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/huddleup/identity/replay"
)

func TestMemoryGuard_Consume(t *testing.T) {
	guard := replay.NewMemoryGuard()
	ctx := context.Background()

	t.Run("first consume wins", func(t *testing.T) {
		ok, err := guard.Consume(ctx, "acme", "code-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("second consume loses", func(t *testing.T) {
		ok, err := guard.Consume(ctx, "acme", "code-1", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("same code id under another tenant is independent", func(t *testing.T) {
		ok, err := guard.Consume(ctx, "globex", "code-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestMemoryGuard_ConcurrentConsume(t *testing.T) {
	guard := replay.NewMemoryGuard()
	ctx := context.Background()

	const attempts = 100
	var successes atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := guard.Consume(ctx, "acme", "contested-code", time.Minute)
			require.NoError(t, err)
			if ok {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(1), successes.Load())
}

func TestMemoryGuard_RecordExpiry(t *testing.T) {
	now := time.Now()
	clock := &now
	guard := replay.NewMemoryGuard(replay.WithNowFunc(func() time.Time { return *clock }))
	ctx := context.Background()

	ok, err := guard.Consume(ctx, "acme", "code-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Once the record's TTL lapses the code id is forgotten. The code JWT
	// itself expired earlier, so this opens no replay window.
	later := now.Add(2 * time.Minute)
	clock = &later

	ok, err = guard.Consume(ctx, "acme", "code-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisGuard_Consume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	guard := replay.NewRedisGuard(client, "authz:")
	ctx := context.Background()

	t.Run("first consume wins", func(t *testing.T) {
		ok, err := guard.Consume(ctx, "acme", "code-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("second consume loses", func(t *testing.T) {
		ok, err := guard.Consume(ctx, "acme", "code-1", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("tenants are independent", func(t *testing.T) {
		ok, err := guard.Consume(ctx, "globex", "code-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("record expires with the code lifetime", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		ok, err := guard.Consume(ctx, "acme", "code-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})
}
