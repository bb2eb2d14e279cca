package bus

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sentraproxy/sentra/internal/observability"
)

// KafkaConfig holds configuration for the Kafka subscriber.
type KafkaConfig struct {
	// Brokers is the bootstrap broker list.
	Brokers []string `yaml:"brokers"`

	// Topic is the change-notification topic.
	Topic string `yaml:"topic"`

	// GroupID is shared by all gateway instances so each event is handled
	// once per deployment; leave empty to consume independently.
	GroupID string `yaml:"groupId"`
}

// KafkaSubscriber consumes change notifications from a Kafka topic.
type KafkaSubscriber struct {
	reader  *kafka.Reader
	brokers []string
	logger  observability.Logger
	metrics *Metrics
	closed  atomic.Bool
}

// KafkaSubscriberOption is a functional option for the subscriber.
type KafkaSubscriberOption func(*KafkaSubscriber)

// WithKafkaSubscriberLogger sets the logger.
func WithKafkaSubscriberLogger(logger observability.Logger) KafkaSubscriberOption {
	return func(s *KafkaSubscriber) {
		s.logger = logger
	}
}

// WithKafkaSubscriberMetrics sets the metrics recorder.
func WithKafkaSubscriberMetrics(m *Metrics) KafkaSubscriberOption {
	return func(s *KafkaSubscriber) {
		s.metrics = m
	}
}

// NewKafkaSubscriber creates a subscriber reading the configured topic.
func NewKafkaSubscriber(cfg KafkaConfig, opts ...KafkaSubscriberOption) *KafkaSubscriber {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
	})

	s := &KafkaSubscriber{
		reader:  reader,
		brokers: cfg.Brokers,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe implements Subscriber. A malformed payload is committed anyway
// so a poison pill is not reprocessed forever; a handler failure leaves the
// message uncommitted for redelivery.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	if s.closed.Load() {
		return ErrSubscriberClosed
	}

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, io.EOF) || s.closed.Load() {
				return ErrSubscriberClosed
			}
			s.logger.Warn("failed to fetch change notification", observability.Error(err))
			continue
		}

		ev, err := DecodeEvent(msg.Value)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordEvent("invalid")
			}
			s.logger.Warn("dropping malformed change notification", observability.Error(err))
			_ = s.reader.CommitMessages(ctx, msg)
			continue
		}

		if s.metrics != nil {
			s.metrics.RecordEvent(string(ev.Kind))
		}
		if err := handler(ctx, ev); err != nil {
			s.logger.Error("change notification handler failed",
				observability.String("kind", string(ev.Kind)),
				observability.Error(err),
			)
			continue
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.logger.Warn("failed to commit change notification", observability.Error(err))
		}
	}
}

// Healthy implements Subscriber by dialing the first reachable broker.
func (s *KafkaSubscriber) Healthy(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for _, broker := range s.brokers {
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			continue
		}
		_ = conn.Close()
		return true
	}
	return false
}

// Close implements Subscriber. Subsequent Subscribe calls return
// ErrSubscriberClosed.
func (s *KafkaSubscriber) Close() error {
	s.closed.Store(true)
	return s.reader.Close()
}

// Ensure KafkaSubscriber implements Subscriber.
var _ Subscriber = (*KafkaSubscriber)(nil)
