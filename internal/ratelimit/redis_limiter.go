package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/sentraproxy/sentra/internal/observability"
)

// tokenBucketScript performs the atomic check-and-decrement. Two keys hold
// the bucket state: token count and last-refill timestamp. Arguments are
// [replenishRate, burstCapacity, now, requestedTokens]; the script returns
// [allowed (0|1), tokensLeft].
var tokenBucketScript = redis.NewScript(`
	local tokens_key = KEYS[1]
	local timestamp_key = KEYS[2]

	local rate = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local fill_time = capacity / rate
	local ttl = math.floor(fill_time * 2)

	local last_tokens = tonumber(redis.call('GET', tokens_key))
	if last_tokens == nil then
		last_tokens = capacity
	end

	local last_refreshed = tonumber(redis.call('GET', timestamp_key))
	if last_refreshed == nil then
		last_refreshed = 0
	end

	local delta = math.max(0, now - last_refreshed)
	local filled_tokens = math.min(capacity, last_tokens + (delta * rate))
	local allowed = filled_tokens >= requested
	local new_tokens = filled_tokens
	local allowed_num = 0
	if allowed then
		new_tokens = filled_tokens - requested
		allowed_num = 1
	end

	if ttl > 0 then
		redis.call('SETEX', tokens_key, ttl, new_tokens)
		redis.call('SETEX', timestamp_key, ttl, now)
	end

	return {allowed_num, new_tokens}
`)

// Scripter is the subset of the redis client the limiter needs. Satisfied by
// *redis.Client and by miniredis-backed clients in tests.
type Scripter interface {
	redis.Scripter
}

// RedisLimiter enforces token-bucket quotas via the shared Redis store. No
// client-side locking: correctness is delegated to the atomicity of the
// server-side script, so concurrent requests for one key serialize at the
// store, not in this process.
type RedisLimiter struct {
	client   Scripter
	registry *Registry
	breaker  *gobreaker.CircuitBreaker
	logger   observability.Logger
	metrics  *Metrics
	now      func() time.Time
}

// RedisLimiterOption is a functional option for the limiter.
type RedisLimiterOption func(*RedisLimiter)

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger observability.Logger) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.logger = logger
	}
}

// WithLimiterMetrics sets the metrics recorder.
func WithLimiterMetrics(m *Metrics) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.metrics = m
	}
}

// WithLimiterClock overrides the time source, for tests.
func WithLimiterClock(now func() time.Time) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.now = now
	}
}

// NewRedisLimiter creates a limiter over the given Redis client and config
// registry. Script calls are wrapped in a circuit breaker so a struggling
// store is probed instead of hammered; breaker-open is treated like any
// other store failure and fails open.
func NewRedisLimiter(client Scripter, registry *Registry, opts ...RedisLimiterOption) *RedisLimiter {
	l := &RedisLimiter{
		client:   client,
		registry: registry,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("rate limit store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return l
}

// Allow implements Limiter. Store failures are absorbed: the request is
// allowed and TokensRemaining reports DegradedTokens.
func (l *RedisLimiter) Allow(ctx context.Context, routeID, key string) (*Decision, error) {
	cfg, err := l.registry.Lookup(routeID)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	start := time.Now()
	tokensKey, timestampKey := storageKeys(cfg.SharedNamespace, key)

	result, err := l.breaker.Execute(func() (any, error) {
		return tokenBucketScript.Run(ctx, l.client,
			[]string{tokensKey, timestampKey},
			cfg.ReplenishRate,
			cfg.BurstCapacity,
			l.now().Unix(),
			cfg.RequestedTokens,
		).Result()
	})

	elapsed := time.Since(start)

	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordCheck("degraded", elapsed)
		}
		l.logger.WithContext(ctx).Warn("rate limit store call failed, failing open",
			observability.String("route", routeID),
			observability.Error(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)),
		)
		return &Decision{
			Allowed:         true,
			TokensRemaining: DegradedTokens,
			ReplenishRate:   cfg.ReplenishRate,
			BurstCapacity:   cfg.BurstCapacity,
			RequestedTokens: cfg.RequestedTokens,
		}, nil
	}

	allowed, tokensLeft, err := parseScriptResult(result)
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordCheck("degraded", elapsed)
		}
		l.logger.WithContext(ctx).Warn("unexpected rate limit script result, failing open",
			observability.String("route", routeID),
			observability.Error(err),
		)
		return &Decision{
			Allowed:         true,
			TokensRemaining: DegradedTokens,
			ReplenishRate:   cfg.ReplenishRate,
			BurstCapacity:   cfg.BurstCapacity,
			RequestedTokens: cfg.RequestedTokens,
		}, nil
	}

	status := "allowed"
	if !allowed {
		status = "denied"
	}
	if l.metrics != nil {
		l.metrics.RecordCheck(status, elapsed)
	}

	return &Decision{
		Allowed:         allowed,
		TokensRemaining: tokensLeft,
		ReplenishRate:   cfg.ReplenishRate,
		BurstCapacity:   cfg.BurstCapacity,
		RequestedTokens: cfg.RequestedTokens,
	}, nil
}

// storageKeys builds the token-count and timestamp keys for a routing key.
// The hash-tag braces keep both keys in one slot, and the optional namespace
// fragment lets distinct routes share a bucket.
func storageKeys(namespace, key string) (string, string) {
	fragment := key
	if namespace != "" {
		fragment = namespace + "." + key
	}
	base := "request_rate_limiter.{" + fragment + "}"
	return base + ".tokens", base + ".timestamp"
}

// parseScriptResult decodes the [allowed, tokensLeft] reply.
func parseScriptResult(result any) (bool, int64, error) {
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("unexpected script result: %v", result)
	}

	allowedNum, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected allowed value: %v", values[0])
	}
	tokensLeft, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected tokens value: %v", values[1])
	}

	return allowedNum == 1, tokensLeft, nil
}

// Ensure RedisLimiter implements Limiter.
var _ Limiter = (*RedisLimiter)(nil)
