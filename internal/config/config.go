package config

import (
	"fmt"

	"github.com/sentraproxy/sentra/internal/access"
	"github.com/sentraproxy/sentra/internal/bus"
	"github.com/sentraproxy/sentra/internal/keys"
	"github.com/sentraproxy/sentra/internal/observability"
	"github.com/sentraproxy/sentra/internal/ratelimit"
)

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Keys      KeysConfig      `yaml:"keys"`
	Auth      AuthConfig      `yaml:"auth"`
	Access    AccessConfig    `yaml:"access"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Bus       BusConfig       `yaml:"bus"`
	Routes    []RouteConfig   `yaml:"routes"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the address the gateway binds, e.g. ":8080".
	Listen string `yaml:"listen"`

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// KeysConfig configures the verification key registry.
type KeysConfig struct {
	// Sources lists where public keys are loaded from.
	Sources []keys.Source `yaml:"sources"`

	// Vault configures the Vault client used by vault-typed sources.
	Vault VaultConfig `yaml:"vault"`

	// PollInterval is the refresh cadence while the change-notification
	// channel is unavailable.
	PollInterval Duration `yaml:"pollInterval"`

	// ProbeInterval is how often channel health is checked.
	ProbeInterval Duration `yaml:"probeInterval"`
}

// VaultConfig configures the Vault KV client.
type VaultConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Mount   string `yaml:"mount"`
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	// Algorithms restricts the accepted signing algorithms.
	Algorithms []string `yaml:"algorithms"`

	// Issuer, when set, must match the credential's iss claim.
	Issuer string `yaml:"issuer"`

	// ClockSkew is the tolerance applied to time-based claims.
	ClockSkew Duration `yaml:"clockSkew"`

	// RequireSubject rejects credentials without a sub claim.
	RequireSubject bool `yaml:"requireSubject"`
}

// ClientConfig is the static form of one caller's access configuration.
type ClientConfig struct {
	ClientID string   `yaml:"clientId"`
	Active   bool     `yaml:"active"`
	Rules    []string `yaml:"rules"`
}

// AccessConfig configures the access rule engine.
type AccessConfig struct {
	// Clients is the static client set, merged under the remote registry.
	Clients []ClientConfig `yaml:"clients"`

	// RegistryURL is the remote client registry endpoint; empty disables it.
	RegistryURL string `yaml:"registryUrl"`

	// ReloadInterval rate-limits registry re-merges on cache misses.
	ReloadInterval Duration `yaml:"reloadInterval"`
}

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig configures the distributed rate limiter.
type RateLimitConfig struct {
	// Redis is the shared quota store.
	Redis RedisConfig `yaml:"redis"`

	// Default is the quota applied to routes without their own config.
	Default ratelimit.Config `yaml:"default"`
}

// BusKind selects the change-notification transport.
type BusKind string

const (
	// BusKindNone disables the channel; the refresher polls from the start.
	BusKindNone BusKind = "none"

	// BusKindRedis consumes change notifications over Redis pub/sub.
	BusKindRedis BusKind = "redis"

	// BusKindKafka consumes change notifications from a Kafka topic.
	BusKindKafka BusKind = "kafka"
)

// BusConfig configures the change-notification channel.
type BusConfig struct {
	Kind    BusKind         `yaml:"kind"`
	Redis   RedisConfig     `yaml:"redis"`
	Channel string          `yaml:"channel"`
	Kafka   bus.KafkaConfig `yaml:"kafka"`
}

// RouteConfig declares one admitted route and its upstream.
type RouteConfig struct {
	// Name is the route's logical name; also the rate limit registry id.
	Name string `yaml:"name"`

	// Service is the backing service name matched by access rules.
	Service string `yaml:"service"`

	// Path is the gin route pattern, e.g. "/orders/*rest".
	Path string `yaml:"path"`

	// Upstream is the base URL requests are forwarded to.
	Upstream string `yaml:"upstream"`

	// RateLimit overrides the default quota for this route.
	RateLimit *ratelimit.Config `yaml:"rateLimit,omitempty"`
}

// DefaultConfig returns a Config with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			Algorithms:     []string{"RS256"},
			RequireSubject: true,
		},
		RateLimit: RateLimitConfig{
			Default: ratelimit.DefaultConfig(),
		},
		Bus: BusConfig{
			Kind: BusKindNone,
		},
	}
}

// LogConfig converts the logging section to the observability form.
func (c *Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// StaticClients converts the static client section to registry records.
func (c *Config) StaticClients() []access.ClientRecord {
	records := make([]access.ClientRecord, 0, len(c.Access.Clients))
	for _, client := range c.Access.Clients {
		records = append(records, access.ClientRecord{
			ClientID: client.ClientID,
			Active:   client.Active,
			Rules:    client.Rules,
		})
	}
	return records
}

// Validate checks the whole configuration fail-fast.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}

	for i, src := range c.Keys.Sources {
		if src.ID == "" {
			return fmt.Errorf("keys.sources[%d]: id must not be empty", i)
		}
		switch src.Type {
		case keys.SourceTypePEM, keys.SourceTypeCert, keys.SourceTypeProperties:
			if src.Location == "" && src.Inline == "" {
				return fmt.Errorf("keys.sources[%d] %q: location or inline is required", i, src.ID)
			}
		case keys.SourceTypeVault:
			if src.Location == "" {
				return fmt.Errorf("keys.sources[%d] %q: location (secret path) is required", i, src.ID)
			}
			if c.Keys.Vault.Address == "" {
				return fmt.Errorf("keys.vault.address is required for vault sources")
			}
		default:
			return fmt.Errorf("keys.sources[%d] %q: unknown source type %q", i, src.ID, src.Type)
		}
	}

	for _, client := range c.Access.Clients {
		if !access.ValidateIdentity(client.ClientID) {
			return fmt.Errorf("access.clients: invalid client id %q", client.ClientID)
		}
		if _, err := access.ParseRules(client.Rules); err != nil {
			return fmt.Errorf("access.clients %q: %w", client.ClientID, err)
		}
	}

	if err := c.RateLimit.Default.Validate(); err != nil {
		return fmt.Errorf("rateLimit.default: %w", err)
	}

	switch c.Bus.Kind {
	case BusKindNone, "":
	case BusKindRedis:
		if c.Bus.Redis.Addr == "" {
			return fmt.Errorf("bus.redis.addr is required for the redis bus")
		}
	case BusKindKafka:
		if len(c.Bus.Kafka.Brokers) == 0 {
			return fmt.Errorf("bus.kafka.brokers is required for the kafka bus")
		}
		if c.Bus.Kafka.Topic == "" {
			return fmt.Errorf("bus.kafka.topic is required for the kafka bus")
		}
	default:
		return fmt.Errorf("bus.kind: unknown kind %q", c.Bus.Kind)
	}

	seen := make(map[string]bool, len(c.Routes))
	for i, route := range c.Routes {
		if route.Name == "" {
			return fmt.Errorf("routes[%d]: name must not be empty", i)
		}
		if seen[route.Name] {
			return fmt.Errorf("routes[%d]: duplicate route name %q", i, route.Name)
		}
		seen[route.Name] = true
		if route.Service == "" {
			return fmt.Errorf("routes[%d] %q: service must not be empty", i, route.Name)
		}
		if route.Path == "" {
			return fmt.Errorf("routes[%d] %q: path must not be empty", i, route.Name)
		}
		if route.RateLimit != nil {
			if err := route.RateLimit.Validate(); err != nil {
				return fmt.Errorf("routes[%d] %q: rateLimit: %w", i, route.Name, err)
			}
		}
	}

	return nil
}
