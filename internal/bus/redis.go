package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentraproxy/sentra/internal/observability"
)

// DefaultChannel is the pub/sub channel change notifications arrive on.
const DefaultChannel = "sentra.admission.events"

// RedisSubscriber consumes change notifications from a Redis pub/sub channel.
type RedisSubscriber struct {
	client  *redis.Client
	channel string
	logger  observability.Logger
	metrics *Metrics
	closed  atomic.Bool
}

// RedisSubscriberOption is a functional option for the subscriber.
type RedisSubscriberOption func(*RedisSubscriber)

// WithRedisChannel overrides the pub/sub channel name.
func WithRedisChannel(channel string) RedisSubscriberOption {
	return func(s *RedisSubscriber) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithRedisSubscriberLogger sets the logger.
func WithRedisSubscriberLogger(logger observability.Logger) RedisSubscriberOption {
	return func(s *RedisSubscriber) {
		s.logger = logger
	}
}

// WithRedisSubscriberMetrics sets the metrics recorder.
func WithRedisSubscriberMetrics(m *Metrics) RedisSubscriberOption {
	return func(s *RedisSubscriber) {
		s.metrics = m
	}
}

// NewRedisSubscriber creates a subscriber over the given Redis client.
func NewRedisSubscriber(client *redis.Client, opts ...RedisSubscriberOption) *RedisSubscriber {
	s := &RedisSubscriber{
		client:  client,
		channel: DefaultChannel,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe implements Subscriber. Malformed payloads are logged and
// skipped; handler errors are logged and consumption continues.
func (s *RedisSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	if s.closed.Load() {
		return ErrSubscriberClosed
	}

	sub := s.client.Subscribe(ctx, s.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrChannelUnavailable
			}
			s.dispatch(ctx, []byte(msg.Payload), handler)
		}
	}
}

func (s *RedisSubscriber) dispatch(ctx context.Context, payload []byte, handler Handler) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordEvent("invalid")
		}
		s.logger.Warn("dropping malformed change notification", observability.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.RecordEvent(string(ev.Kind))
	}
	if err := handler(ctx, ev); err != nil {
		s.logger.Error("change notification handler failed",
			observability.String("kind", string(ev.Kind)),
			observability.Error(err),
		)
	}
}

// Healthy implements Subscriber via a bounded ping.
func (s *RedisSubscriber) Healthy(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx).Err() == nil
}

// Close implements Subscriber. Subsequent Subscribe calls return
// ErrSubscriberClosed.
func (s *RedisSubscriber) Close() error {
	s.closed.Store(true)
	return s.client.Close()
}

// Ensure RedisSubscriber implements Subscriber.
var _ Subscriber = (*RedisSubscriber)(nil)
