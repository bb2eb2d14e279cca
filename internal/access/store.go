package access

import (
	"context"
	"sync"
	"time"

	"github.com/sentraproxy/sentra/internal/observability"
)

// ClientConfig is the merged access configuration for one caller identity.
type ClientConfig struct {
	// ClientID is the caller identity.
	ClientID string

	// Active gates the whole configuration; inactive clients are denied.
	Active bool

	// Rules is the ordered rule set evaluated with deny-overrides semantics.
	Rules []Rule
}

// ClientFetcher fetches client records from the remote registry.
type ClientFetcher interface {
	FetchClients(ctx context.Context) ([]ClientRecord, error)
}

// Store caches merged client configurations. Static configuration and the
// remote registry are merged with remote winning on id conflicts.
// Invalidation drops exactly the named entries; the next access for a
// dropped id triggers a re-merge. A fetch failure keeps the last-known-good
// merge rather than failing the request.
type Store struct {
	static  []ClientRecord
	fetcher ClientFetcher
	logger  observability.Logger
	metrics *Metrics

	mu          sync.RWMutex
	entries     map[string]*ClientConfig
	loaded      bool
	lastReload  time.Time
	minInterval time.Duration
}

// StoreOption is a functional option for the store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(logger observability.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStoreMetrics sets the metrics recorder.
func WithStoreMetrics(m *Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithReloadInterval sets the minimum interval between miss-triggered
// remote fetches, protecting the registry from per-request hammering on
// lookups of unknown ids.
func WithReloadInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.minInterval = d
		}
	}
}

// NewStore creates a client config store.
func NewStore(static []ClientRecord, fetcher ClientFetcher, opts ...StoreOption) *Store {
	s := &Store{
		static:      static,
		fetcher:     fetcher,
		logger:      observability.NopLogger(),
		entries:     make(map[string]*ClientConfig),
		minInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the merged configuration for a client id. A miss triggers a
// re-merge (rate limited); a miss after re-merge means the client is
// unknown and the pipeline denies.
func (s *Store) Get(ctx context.Context, clientID string) (*ClientConfig, bool) {
	s.mu.RLock()
	cfg, ok := s.entries[clientID]
	loaded := s.loaded
	s.mu.RUnlock()

	if ok {
		if s.metrics != nil {
			s.metrics.RecordConfigLookup(true)
		}
		return cfg, true
	}

	if !loaded || s.reloadDue() {
		if err := s.Reload(ctx); err != nil {
			s.logger.WithContext(ctx).Warn("client config reload failed, serving last-known-good",
				observability.Error(err),
			)
		}
		s.mu.RLock()
		cfg, ok = s.entries[clientID]
		s.mu.RUnlock()
	}

	if s.metrics != nil {
		s.metrics.RecordConfigLookup(ok)
	}
	return cfg, ok
}

// reloadDue reports whether enough time has passed since the last merge.
func (s *Store) reloadDue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastReload) >= s.minInterval
}

// ReplaceStatic swaps the static client set. Takes effect on the next
// Reload; existing merged entries are untouched until then.
func (s *Store) ReplaceStatic(static []ClientRecord) {
	s.mu.Lock()
	s.static = static
	s.mu.Unlock()
}

// Reload fetches the remote registry and rebuilds the merged map. On fetch
// error the previous entries are kept and the error is returned.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.RLock()
	static := s.static
	s.mu.RUnlock()

	var remote []ClientRecord
	if s.fetcher != nil {
		fetched, err := s.fetcher.FetchClients(ctx)
		if err != nil {
			s.mu.Lock()
			s.lastReload = time.Now()
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordReload("error")
			}
			return err
		}
		remote = fetched
	}

	merged, err := mergeClients(static, remote)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordReload("error")
		}
		return err
	}

	s.mu.Lock()
	s.entries = merged
	s.loaded = true
	s.lastReload = time.Now()
	size := len(merged)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordReload("success")
		s.metrics.SetConfigCount(size)
	}
	s.logger.Debug("client configs merged", observability.Int("clients", size))
	return nil
}

// Invalidate drops exactly the named entries. Idempotent and commutative
// with concurrent reads; a reader sees either the old or the refreshed
// entry, never a partial one.
func (s *Store) Invalidate(clientIDs ...string) {
	s.mu.Lock()
	for _, id := range clientIDs {
		delete(s.entries, id)
	}
	// Allow the next access to re-merge immediately.
	s.lastReload = time.Time{}
	size := len(s.entries)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordInvalidation(len(clientIDs))
		s.metrics.SetConfigCount(size)
	}
}

// Len returns the number of cached client configurations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// mergeClients merges static and remote records, remote winning on
// conflicts. Malformed rules fail the merge at load time.
func mergeClients(static, remote []ClientRecord) (map[string]*ClientConfig, error) {
	merged := make(map[string]*ClientConfig, len(static)+len(remote))

	for _, rec := range static {
		cfg, err := recordToConfig(rec)
		if err != nil {
			return nil, err
		}
		merged[rec.ClientID] = cfg
	}
	for _, rec := range remote {
		cfg, err := recordToConfig(rec)
		if err != nil {
			return nil, err
		}
		merged[rec.ClientID] = cfg
	}

	return merged, nil
}

func recordToConfig(rec ClientRecord) (*ClientConfig, error) {
	rules, err := ParseRules(rec.Rules)
	if err != nil {
		return nil, err
	}
	return &ClientConfig{
		ClientID: rec.ClientID,
		Active:   rec.Active,
		Rules:    rules,
	}, nil
}
