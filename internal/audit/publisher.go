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

	"cidledger/internal/platform/kafka/producer"
	"cidledger/pkg/requestcontext"
)

// Emitter is the port domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. With a Kafka
// sink configured, events are produced to the audit topic and persisted by
// the consumer-side Handler instead.
type Publisher struct {
	store   Store
	events  chan Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	async   bool
	kafka   producer.Publisher
	topic   string
	metrics *Metrics
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine.
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

// WithKafkaSink routes events to topic instead of the store.
func WithKafkaSink(pub producer.Publisher, topic string) PublisherOption {
	return func(p *Publisher) {
		p.kafka = pub
		p.topic = topic
	}
}

func WithPublisherMetrics(m *Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
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
		if err := p.deliver(context.Background(), event); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to persist audit event",
					"error", err,
					"action", event.Action,
					"cid", event.CID,
				)
			}
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

// Emit stamps ID, timestamp, request id and admin actor, then hands the event
// to the configured sink.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	if base.ActorID == "" {
		base.ActorID = requestcontext.AdminActor(ctx)
	}
	if base.Category == "" {
		base.Category = CategoryOperations
	}
	p.metrics.incEmitted(base.Action)

	if p.async {
		// Non-blocking send; drop event if buffer is full to avoid blocking hot path
		select {
		case p.events <- base:
			return nil
		default:
			p.metrics.incDropped()
			if p.logger != nil {
				p.logger.Warn("audit buffer full, event dropped",
					"action", base.Action,
					"cid", base.CID,
				)
			}
			return nil
		}
	}
	return p.deliver(ctx, base)
}

func (p *Publisher) deliver(ctx context.Context, event Event) error {
	if p.kafka == nil {
		return p.store.Append(ctx, event)
	}
	value, err := json.Marshal(toPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return p.kafka.ProduceAsync(&producer.Message{
		Topic: p.topic,
		Key:   []byte(event.ID.String()),
		Value: value,
		Headers: map[string]string{
			"action": string(event.Action),
		},
	})
}

// List returns the stored trail for a CID, newest first.
func (p *Publisher) List(ctx context.Context, cid string, filter ListFilter) ([]Event, error) {
	return p.store.ListByCID(ctx, cid, filter)
}

// payload is the wire form on the audit topic.
type payload struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Timestamp  string            `json:"timestamp"`
	CID        string            `json:"cid,omitempty"`
	Action     string            `json:"action"`
	Decision   string            `json:"decision,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func toPayload(e Event) payload {
	return payload{
		ID:         e.ID.String(),
		Category:   string(e.Category),
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		CID:        e.CID,
		Action:     string(e.Action),
		Decision:   e.Decision,
		Reason:     e.Reason,
		RequestID:  e.RequestID,
		ActorID:    e.ActorID,
		Attributes: e.Attributes,
	}
}

// Metrics counts emitted and dropped audit events.
type Metrics struct {
	Emitted *prometheus.CounterVec
	Dropped prometheus.Counter
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_audit_events_emitted_total",
			Help: "Total number of audit events emitted, labeled by action",
		}, []string{"action"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "cidledger_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full",
		}),
	}
}

func (m *Metrics) incEmitted(action Action) {
	if m == nil {
		return
	}
	m.Emitted.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}
