// Package main is the entry point for the request admission gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/redis/go-redis/v9"

	"github.com/sentraproxy/sentra/internal/access"
	"github.com/sentraproxy/sentra/internal/auth"
	"github.com/sentraproxy/sentra/internal/bus"
	"github.com/sentraproxy/sentra/internal/config"
	"github.com/sentraproxy/sentra/internal/gateway"
	"github.com/sentraproxy/sentra/internal/health"
	"github.com/sentraproxy/sentra/internal/keys"
	"github.com/sentraproxy/sentra/internal/observability"
	"github.com/sentraproxy/sentra/internal/ratelimit"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", getEnvOrDefault("SENTRA_CONFIG_PATH", "configs/sentra.yaml"),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sentra version %s\n", version)
		fmt.Printf("  Build time: %s\n", buildTime)
		fmt.Printf("  Git commit: %s\n", gitCommit)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	observability.SetGlobalLogger(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Fatal("gateway failed", observability.Error(err))
	}
}

func run(cfg *config.Config, configPath string, logger observability.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Key registry.
	loaders := keys.NewLoaderSet()
	if cfg.Keys.Vault.Address != "" {
		vaultClient, err := newVaultClient(cfg.Keys.Vault)
		if err != nil {
			return fmt.Errorf("vault client: %w", err)
		}
		loaders.Register(keys.SourceTypeVault, keys.NewVaultLoader(vaultClient, cfg.Keys.Vault.Mount))
	}

	keyMetrics := keys.NewMetrics("sentra")
	keyCache := keys.NewCache(keys.WithCacheMetrics(keyMetrics))

	refresherOpts := []keys.RefresherOption{
		keys.WithRefresherLogger(logger),
		keys.WithRefresherMetrics(keyMetrics),
	}
	if d := cfg.Keys.PollInterval.Duration(); d > 0 {
		refresherOpts = append(refresherOpts, keys.WithPollInterval(d))
	}
	if d := cfg.Keys.ProbeInterval.Duration(); d > 0 {
		refresherOpts = append(refresherOpts, keys.WithProbeInterval(d))
	}

	// Change-notification channel.
	subscriber, err := newSubscriber(cfg, logger)
	if err != nil {
		return fmt.Errorf("change notification channel: %w", err)
	}
	if subscriber != nil {
		defer func() { _ = subscriber.Close() }()
		refresherOpts = append(refresherOpts, keys.WithProber(subscriber))
	}

	refresher := keys.NewRefresher(cfg.Keys.Sources, loaders, keyCache, refresherOpts...)
	if err := refresher.HandleFullReload(ctx); err != nil {
		return fmt.Errorf("initial key load: %w", err)
	}
	if subscriber == nil {
		// No channel configured: refresh is polling-only.
		refresher.ForcePolling()
	}
	go refresher.Start(ctx)

	// Credential verification.
	validator, err := auth.NewValidator(&auth.Config{
		Algorithms:     cfg.Auth.Algorithms,
		Issuer:         cfg.Auth.Issuer,
		ClockSkew:      cfg.Auth.ClockSkew.Duration(),
		RequireSubject: cfg.Auth.RequireSubject,
	}, keyCache,
		auth.WithValidatorLogger(logger),
		auth.WithValidatorMetrics(auth.NewMetrics("sentra")),
	)
	if err != nil {
		return fmt.Errorf("credential validator: %w", err)
	}

	// Access rule engine.
	var fetcher access.ClientFetcher
	if cfg.Access.RegistryURL != "" {
		fetcher = access.NewRegistryClient(cfg.Access.RegistryURL,
			access.WithRegistryLogger(logger),
		)
	}
	accessMetrics := access.NewMetrics("sentra")
	storeOpts := []access.StoreOption{
		access.WithStoreLogger(logger),
		access.WithStoreMetrics(accessMetrics),
	}
	if d := cfg.Access.ReloadInterval.Duration(); d > 0 {
		storeOpts = append(storeOpts, access.WithReloadInterval(d))
	}
	store := access.NewStore(cfg.StaticClients(), fetcher, storeOpts...)
	if err := store.Reload(ctx); err != nil {
		logger.Warn("initial client config load incomplete", observability.Error(err))
	}

	// Config file watcher. Only the static client set and the key source
	// list are hot-reloaded; listener and route changes need a restart.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		store.ReplaceStatic(next.StaticClients())
		refresher.SetSources(next.Keys.Sources)

		reloadCtx, cancelReload := context.WithTimeout(ctx, 30*time.Second)
		defer cancelReload()
		if err := store.Reload(reloadCtx); err != nil {
			logger.Warn("client config reload after config change failed", observability.Error(err))
		}
		if err := refresher.HandleFullReload(reloadCtx); err != nil {
			logger.Warn("key reload after config change failed", observability.Error(err))
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer func() { _ = watcher.Stop() }()

	// Distributed rate limiter.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.Redis.Addr,
		Password: cfg.RateLimit.Redis.Password,
		DB:       cfg.RateLimit.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	limits := ratelimit.NewRegistry(cfg.RateLimit.Default)
	for _, route := range cfg.Routes {
		if route.RateLimit == nil {
			continue
		}
		if err := limits.Register(route.Name, *route.RateLimit); err != nil {
			return fmt.Errorf("rate limit config: %w", err)
		}
	}
	rateLimitMetrics := ratelimit.NewMetrics("sentra")
	limiter := ratelimit.NewRedisLimiter(redisClient, limits,
		ratelimit.WithLimiterLogger(logger),
		ratelimit.WithLimiterMetrics(rateLimitMetrics),
	)

	// Wire change notifications to the caches.
	if subscriber != nil {
		go consumeEvents(ctx, subscriber, refresher, store, logger)
	}

	// Health probes.
	checker := health.NewChecker()
	checker.Register("rate_limit_store", health.RedisCheck(redisClient))
	if subscriber != nil {
		checker.Register("change_notification_channel", health.BusCheck(subscriber))
	}

	server, err := gateway.NewServer(cfg, gateway.Dependencies{
		Validator:        validator,
		Store:            store,
		Limiter:          limiter,
		Limits:           limits,
		Checker:          checker,
		Logger:           logger,
		AccessMetrics:    accessMetrics,
		RateLimitMetrics: rateLimitMetrics,
	})
	if err != nil {
		return fmt.Errorf("server setup: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}

// newSubscriber builds the configured change-notification subscriber, or nil
// when the channel is disabled.
func newSubscriber(cfg *config.Config, logger observability.Logger) (bus.Subscriber, error) {
	busMetrics := bus.NewMetrics("sentra")

	switch cfg.Bus.Kind {
	case config.BusKindRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Bus.Redis.Addr,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
		})
		return bus.NewRedisSubscriber(client,
			bus.WithRedisChannel(cfg.Bus.Channel),
			bus.WithRedisSubscriberLogger(logger),
			bus.WithRedisSubscriberMetrics(busMetrics),
		), nil
	case config.BusKindKafka:
		return bus.NewKafkaSubscriber(cfg.Bus.Kafka,
			bus.WithKafkaSubscriberLogger(logger),
			bus.WithKafkaSubscriberMetrics(busMetrics),
		), nil
	case config.BusKindNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown bus kind %q", cfg.Bus.Kind)
	}
}

// consumeEvents dispatches change notifications to the key refresher and the
// client config store, reconnecting with backoff when the channel drops.
func consumeEvents(ctx context.Context, subscriber bus.Subscriber, refresher *keys.Refresher, store *access.Store, logger observability.Logger) {
	handler := func(ctx context.Context, ev bus.Event) error {
		switch ev.Kind {
		case bus.KindFullReload:
			if err := store.Reload(ctx); err != nil {
				logger.Warn("client config reload failed", observability.Error(err))
			}
			return refresher.HandleFullReload(ctx)
		case bus.KindSourceReload:
			return refresher.HandleSourceReload(ctx, ev.SourceID)
		case bus.KindClientInvalidate:
			store.Invalidate(ev.ClientIDs...)
			return nil
		default:
			return nil
		}
	}

	for {
		err := subscriber.Subscribe(ctx, handler)
		if ctx.Err() != nil || errors.Is(err, bus.ErrSubscriberClosed) {
			return
		}
		logger.Warn("change notification subscription lost, retrying", observability.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func newVaultClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, err
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
