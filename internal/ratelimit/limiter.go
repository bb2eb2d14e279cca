package ratelimit

import (
	"context"
	"strconv"
)

// DegradedTokens is the reserved tokens-remaining value reported when the
// limiter fails open, so telemetry can distinguish a degraded limiter from a
// genuinely near-empty bucket.
const DegradedTokens int64 = -1

// Decision is the outcome of one rate limit check. Ephemeral; exposed to the
// caller as response metadata only.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// TokensRemaining is the bucket balance after the check, or
	// DegradedTokens when the store call failed.
	TokensRemaining int64

	// ReplenishRate is the configured steady-state rate.
	ReplenishRate int64

	// BurstCapacity is the configured bucket size.
	BurstCapacity int64

	// RequestedTokens is the cost of this request.
	RequestedTokens int64
}

// Response header names for quota telemetry.
const (
	HeaderRemaining       = "X-RateLimit-Remaining"
	HeaderReplenishRate   = "X-RateLimit-Replenish-Rate"
	HeaderBurstCapacity   = "X-RateLimit-Burst-Capacity"
	HeaderRequestedTokens = "X-RateLimit-Requested-Tokens"
)

// Headers returns the quota telemetry headers for this decision.
func (d *Decision) Headers() map[string]string {
	return map[string]string{
		HeaderRemaining:       strconv.FormatInt(d.TokensRemaining, 10),
		HeaderReplenishRate:   strconv.FormatInt(d.ReplenishRate, 10),
		HeaderBurstCapacity:   strconv.FormatInt(d.BurstCapacity, 10),
		HeaderRequestedTokens: strconv.FormatInt(d.RequestedTokens, 10),
	}
}

// Limiter decides whether a request identified by a routing key is within
// its route's quota.
type Limiter interface {
	// Allow checks the routing key against the quota registered for routeID.
	Allow(ctx context.Context, routeID, key string) (*Decision, error)
}
