package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chalk/internal/platform/kafka/producer"
)

var auditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chalk_audit_events_dropped_total",
	Help: "Number of audit events dropped because the publisher buffer was full",
})

// Sink receives events for out-of-process fan-out alongside persistence.
type Sink interface {
	Publish(event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store  Store
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine; a full buffer
// drops the event rather than stalling the request path.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSink adds an out-of-process fan-out target (e.g. the Kafka sink).
func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and persists events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		p.deliver(context.Background(), event)
	}
}

func (p *Publisher) deliver(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"type", string(event.Type),
				"identity", event.IdentityKey(),
			)
		}
	}
	if p.sink == nil {
		return
	}
	if err := p.sink.Publish(event); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to fan out audit event",
				"error", err,
				"type", string(event.Type),
				"identity", event.IdentityKey(),
			)
		}
	}
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit records an event, stamping id and timestamp when unset. The async
// path never blocks: quota decisions must not wait on the audit trail.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if p.async {
		select {
		case p.events <- event:
			return nil
		default:
			auditDroppedTotal.Inc()
			if p.logger != nil {
				p.logger.Warn("audit buffer full, event dropped",
					"type", string(event.Type),
					"identity", event.IdentityKey(),
				)
			}
			return nil
		}
	}
	p.deliver(ctx, event)
	return nil
}

// List returns the most recent events from the backing store.
func (p *Publisher) List(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// KafkaSink publishes events to a Kafka topic through the platform producer,
// keyed by identity so per-identity ordering survives partitioning.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(event.IdentityKey()),
		Value: payload,
	})
}
