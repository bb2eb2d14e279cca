package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
)

// DefaultConfigID is the registry entry applied when a route has no
// specific rate limit configuration.
const DefaultConfigID = "defaultFilters"

// TypeTokenBucket is the only implemented limiting algorithm.
const TypeTokenBucket = "tokenBucket"

// Config is the per-route quota configuration.
type Config struct {
	// Type names the limiting algorithm. Empty means tokenBucket; any
	// other value is rejected at load time.
	Type string `yaml:"rateLimitType,omitempty"`

	// ReplenishRate is how many tokens the bucket accrues per second.
	ReplenishRate int64 `yaml:"replenishRate"`

	// BurstCapacity is the maximum bucket size.
	BurstCapacity int64 `yaml:"burstCapacity"`

	// RequestedTokens is the cost of one request.
	RequestedTokens int64 `yaml:"requestedTokens"`

	// KeyResolver names the resolver deriving the routing key.
	KeyResolver ResolverName `yaml:"keyResolver"`

	// HeaderName is the header read by the header resolver.
	HeaderName string `yaml:"headerName,omitempty"`

	// DenyEmptyKey rejects requests whose resolver yields no key.
	DenyEmptyKey bool `yaml:"denyEmptyKey"`

	// EmptyKeyStatus is the status code used when DenyEmptyKey applies.
	EmptyKeyStatus int `yaml:"emptyKeyStatus"`

	// IncludeHeaders exposes quota telemetry headers on responses.
	IncludeHeaders bool `yaml:"includeHeaders"`

	// SharedNamespace, when set, scopes storage keys so distinct routes
	// configured with the same namespace share one quota bucket.
	SharedNamespace string `yaml:"sharedNamespace,omitempty"`

	// ExtraArgs carries algorithm-specific settings. The token bucket
	// takes none; the field is kept so configs stay portable.
	ExtraArgs map[string]string `yaml:"extraArgs,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ReplenishRate:   10,
		BurstCapacity:   20,
		RequestedTokens: 1,
		KeyResolver:     ResolverClientIP,
		DenyEmptyKey:    true,
		EmptyKeyStatus:  http.StatusTooManyRequests,
		IncludeHeaders:  true,
	}
}

// Validate checks a Config at load time.
func (c Config) Validate() error {
	if c.Type != "" && c.Type != TypeTokenBucket {
		return fmt.Errorf("unsupported rateLimitType %q", c.Type)
	}
	if c.ReplenishRate <= 0 {
		return fmt.Errorf("replenishRate must be positive, got %d", c.ReplenishRate)
	}
	if c.BurstCapacity <= 0 {
		return fmt.Errorf("burstCapacity must be positive, got %d", c.BurstCapacity)
	}
	if c.RequestedTokens <= 0 {
		return fmt.Errorf("requestedTokens must be positive, got %d", c.RequestedTokens)
	}
	if !c.KeyResolver.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownResolver, c.KeyResolver)
	}
	if c.KeyResolver == ResolverHeader && c.HeaderName == "" {
		return fmt.Errorf("headerName is required for the header resolver")
	}
	return nil
}

// Registry maps route ids to their quota configuration, with a well-known
// default entry as fallback.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewRegistry creates a registry seeded with the given default config.
func NewRegistry(def Config) *Registry {
	return &Registry{
		configs: map[string]Config{DefaultConfigID: def},
	}
}

// Register adds or replaces the config for a route. The config is validated
// so unknown resolver names are rejected at load time, not per request.
func (r *Registry) Register(routeID string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("route %q: %w", routeID, err)
	}
	r.mu.Lock()
	r.configs[routeID] = cfg
	r.mu.Unlock()
	return nil
}

// Lookup returns the config for a route, falling back to the default entry.
func (r *Registry) Lookup(routeID string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.configs[routeID]; ok {
		return cfg, nil
	}
	if cfg, ok := r.configs[DefaultConfigID]; ok {
		return cfg, nil
	}
	return Config{}, fmt.Errorf("%w: %q", ErrNoConfig, routeID)
}
