package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, def Config) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Frozen clock so a second boundary between calls cannot refill buckets.
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRedisLimiter(client, NewRegistry(def),
		WithLimiterClock(func() time.Time { return now }),
	)
	return limiter, mr
}

func TestLimiterAllowsWithinBurst(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		ReplenishRate:   1,
		BurstCapacity:   3,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
	})

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), "route-1", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d within burst", i)
		assert.Equal(t, int64(3), decision.BurstCapacity)
	}

	decision, err := limiter.Allow(context.Background(), "route-1", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "burst exhausted")
	assert.Equal(t, int64(0), decision.TokensRemaining)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		ReplenishRate:   1,
		BurstCapacity:   1,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
	})

	decision, err := limiter.Allow(context.Background(), "route-1", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(context.Background(), "route-1", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// A different caller has its own bucket.
	decision, err = limiter.Allow(context.Background(), "route-1", "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLimiterReplenishesOverTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, NewRegistry(Config{
		ReplenishRate:   2,
		BurstCapacity:   2,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
	}), WithLimiterClock(func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(context.Background(), "route-1", "key")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(context.Background(), "route-1", "key")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// One second later the bucket has refilled.
	now = now.Add(time.Second)
	decision, err = limiter.Allow(context.Background(), "route-1", "key")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLimiterSharedNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := NewRegistry(DefaultConfig())
	shared := Config{
		ReplenishRate:   1,
		BurstCapacity:   2,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
		SharedNamespace: "team-x",
	}
	require.NoError(t, registry.Register("route-a", shared))
	require.NoError(t, registry.Register("route-b", shared))

	now := time.Unix(1_700_000_000, 0)
	limiter := NewRedisLimiter(client, registry,
		WithLimiterClock(func() time.Time { return now }),
	)

	// Both routes drain the same bucket for the same caller.
	decision, err := limiter.Allow(context.Background(), "route-a", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(context.Background(), "route-b", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(context.Background(), "route-a", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "namespace-shared bucket exhausted across routes")
}

func TestStorageKeys(t *testing.T) {
	tokens, timestamp := storageKeys("", "10.0.0.1")
	assert.Equal(t, "request_rate_limiter.{10.0.0.1}.tokens", tokens)
	assert.Equal(t, "request_rate_limiter.{10.0.0.1}.timestamp", timestamp)

	tokens, timestamp = storageKeys("team-x", "10.0.0.1")
	assert.Equal(t, "request_rate_limiter.{team-x.10.0.0.1}.tokens", tokens)
	assert.Equal(t, "request_rate_limiter.{team-x.10.0.0.1}.timestamp", timestamp)
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	// A client pointing at a closed port: every script call fails.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, NewRegistry(Config{
		ReplenishRate:   10,
		BurstCapacity:   20,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
	}))

	decision, err := limiter.Allow(context.Background(), "route-1", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "store failure must not reject requests")
	assert.Equal(t, DegradedTokens, decision.TokensRemaining)
	assert.Equal(t, int64(10), decision.ReplenishRate)
	assert.Equal(t, int64(20), decision.BurstCapacity)
}

func TestLimiterFailsOpenWhenBreakerOpens(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, NewRegistry(DefaultConfig()))

	// Enough consecutive failures to trip the breaker; every answer stays
	// fail-open either way.
	for i := 0; i < 10; i++ {
		decision, err := limiter.Allow(context.Background(), "route-1", "key")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, DegradedTokens, decision.TokensRemaining)
	}
}

func TestLimiterUnknownRouteUsesDefault(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		ReplenishRate:   1,
		BurstCapacity:   1,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
	})

	decision, err := limiter.Allow(context.Background(), "never-registered", "key")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(1), decision.BurstCapacity, "default config applied")
}

func TestLimiterRejectsEmptyKey(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		ReplenishRate:   1,
		BurstCapacity:   1,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
	})

	decision, err := limiter.Allow(context.Background(), "route-1", "")
	require.ErrorIs(t, err, ErrEmptyKey)
	assert.Nil(t, decision)
}

func TestDecisionHeaders(t *testing.T) {
	d := &Decision{
		Allowed:         true,
		TokensRemaining: 7,
		ReplenishRate:   10,
		BurstCapacity:   20,
		RequestedTokens: 1,
	}

	headers := d.Headers()
	assert.Equal(t, "7", headers[HeaderRemaining])
	assert.Equal(t, "10", headers[HeaderReplenishRate])
	assert.Equal(t, "20", headers[HeaderBurstCapacity])
	assert.Equal(t, "1", headers[HeaderRequestedTokens])

	degraded := &Decision{Allowed: true, TokensRemaining: DegradedTokens}
	assert.Equal(t, "-1", degraded.Headers()[HeaderRemaining])
}
