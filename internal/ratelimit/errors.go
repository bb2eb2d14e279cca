package ratelimit

import "errors"

// Sentinel errors for rate limiting.
var (
	// ErrStoreUnavailable indicates that the shared store call failed.
	ErrStoreUnavailable = errors.New("rate limit store is unavailable")

	// ErrNoConfig indicates that neither a route config nor the default
	// config is registered.
	ErrNoConfig = errors.New("no rate limit configuration for route")

	// ErrUnknownResolver indicates a key resolver name with no registered
	// implementation. Rejected at configuration load time.
	ErrUnknownResolver = errors.New("unknown key resolver")

	// ErrEmptyKey indicates that the resolver produced no routing key.
	ErrEmptyKey = errors.New("rate limit key is empty")
)
