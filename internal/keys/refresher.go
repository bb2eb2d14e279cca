package keys

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentraproxy/sentra/internal/observability"
)

// Prober reports whether the change-notification channel is reachable.
type Prober interface {
	Healthy(ctx context.Context) bool
}

// Refresher coordinates cache invalidation and reloads. While the
// change-notification channel is available, refresh is purely event-driven;
// on sustained unavailability it flips to periodic polling until the channel
// recovers. The two flags are independent atomics so the prober and the
// polling ticker never race destructively.
type Refresher struct {
	mu      sync.RWMutex
	sources []Source
	loaders *LoaderSet
	cache   *Cache
	prober  Prober
	logger  observability.Logger
	metrics *Metrics

	pollInterval  time.Duration
	probeInterval time.Duration

	channelAvailable atomic.Bool
	pollingActive    atomic.Bool
}

// RefresherOption is a functional option for the refresher.
type RefresherOption func(*Refresher)

// WithRefresherLogger sets the logger.
func WithRefresherLogger(logger observability.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// WithRefresherMetrics sets the metrics recorder.
func WithRefresherMetrics(m *Metrics) RefresherOption {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// WithPollInterval overrides the polling fallback interval.
func WithPollInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithProbeInterval overrides the channel health probe interval.
func WithProbeInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.probeInterval = d
		}
	}
}

// WithProber sets the channel health prober. Without one the refresher
// assumes the channel is available and never polls.
func WithProber(p Prober) RefresherOption {
	return func(r *Refresher) {
		r.prober = p
	}
}

// NewRefresher creates a refresher for the given sources.
func NewRefresher(sources []Source, loaders *LoaderSet, cache *Cache, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		sources:       sources,
		loaders:       loaders,
		cache:         cache,
		logger:        observability.NopLogger(),
		pollInterval:  30 * time.Second,
		probeInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.channelAvailable.Store(true)
	return r
}

// SetSources replaces the source list consulted by subsequent reloads.
func (r *Refresher) SetSources(sources []Source) {
	r.mu.Lock()
	r.sources = sources
	r.mu.Unlock()
}

func (r *Refresher) snapshotSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources
}

// HandleFullReload reloads every configured source, replacing the whole
// cache. Treated as a cold start: a lookup racing ahead of insertion fails
// closed and the caller retries.
func (r *Refresher) HandleFullReload(ctx context.Context) error {
	start := time.Now()
	r.cache.Clear()

	var firstErr error
	for _, src := range r.snapshotSources() {
		if err := r.loadSource(ctx, src); err != nil {
			r.logger.Error("failed to reload key source",
				observability.String("source", src.ID),
				observability.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	status := "success"
	if firstErr != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordReload("full", status, time.Since(start).Seconds())
	}
	return firstErr
}

// HandleSourceReload invalidates and reloads a single source. Keys owned by
// the source are dropped by predicate so their individual ids need not be
// known.
func (r *Refresher) HandleSourceReload(ctx context.Context, sourceID string) error {
	start := time.Now()
	r.cache.RemoveFunc(func(info KeyInfo) bool {
		return info.SourceID == sourceID
	})

	var err error
	found := false
	for _, src := range r.snapshotSources() {
		if src.ID != sourceID {
			continue
		}
		found = true
		err = r.loadSource(ctx, src)
		break
	}
	if !found {
		r.logger.Warn("source reload for unknown source", observability.String("source", sourceID))
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordReload("source", status, time.Since(start).Seconds())
	}
	return err
}

// loadSource loads one source into the cache, registering default sources
// under the sentinel id as well.
func (r *Refresher) loadSource(ctx context.Context, src Source) error {
	loaded, err := r.loaders.Load(ctx, src)
	if err != nil {
		return err
	}

	for keyID, key := range loaded {
		r.cache.Put(KeyInfo{KeyID: keyID, Key: key, SourceID: src.ID})
		if src.IsDefault {
			r.cache.Put(KeyInfo{KeyID: DefaultKeyID, Key: key, SourceID: src.ID})
		}
	}

	r.logger.Debug("key source loaded",
		observability.String("source", src.ID),
		observability.Int("keys", len(loaded)),
	)
	return nil
}

// Start runs the health prober and the polling fallback until ctx is
// cancelled. Blocking; run it in a goroutine.
func (r *Refresher) Start(ctx context.Context) {
	probe := time.NewTicker(r.probeInterval)
	poll := time.NewTicker(r.pollInterval)
	defer probe.Stop()
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-probe.C:
			r.probeChannel(ctx)
		case <-poll.C:
			r.pollTick(ctx)
		}
	}
}

// probeChannel checks channel health and flips the polling fallback.
func (r *Refresher) probeChannel(ctx context.Context) {
	if r.prober == nil {
		return
	}

	healthy := r.prober.Healthy(ctx)
	was := r.channelAvailable.Swap(healthy)

	switch {
	case !healthy && was:
		r.pollingActive.Store(true)
		if r.metrics != nil {
			r.metrics.SetPollingActive(true)
		}
		r.logger.Warn("change-notification channel unavailable, falling back to polling",
			observability.Duration("interval", r.pollInterval),
		)
	case healthy && !was:
		r.pollingActive.Store(false)
		if r.metrics != nil {
			r.metrics.SetPollingActive(false)
		}
		r.logger.Info("change-notification channel recovered, refresh is event-driven again")
	}
}

// pollTick performs a best-effort full reload while polling is active.
// Failures are logged and swallowed; a future tick retries.
func (r *Refresher) pollTick(ctx context.Context) {
	if !r.pollingActive.Load() {
		return
	}
	if err := r.HandleFullReload(ctx); err != nil {
		r.logger.Warn("polling reload failed", observability.Error(err))
	}
}

// ForcePolling activates the polling fallback regardless of probe state.
// Administrative escape hatch when the channel is known bad.
func (r *Refresher) ForcePolling() {
	r.channelAvailable.Store(false)
	r.pollingActive.Store(true)
	if r.metrics != nil {
		r.metrics.SetPollingActive(true)
	}
}

// PollingActive reports whether the polling fallback is currently active.
func (r *Refresher) PollingActive() bool {
	return r.pollingActive.Load()
}

// ChannelAvailable reports the last observed channel health.
func (r *Refresher) ChannelAvailable() bool {
	return r.channelAvailable.Load()
}
