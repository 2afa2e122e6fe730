package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClosed is returned when producing after Close.
var ErrClosed = errors.New("producer is closed")

// Message is a record to publish. Records sharing a Key land on the same
// partition, which preserves their relative order.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Publisher is the producing surface services depend on.
type Publisher interface {
	Produce(ctx context.Context, msg *Message) error
	ProduceAsync(msg *Message) error
	Healthy(ctx context.Context) bool
	Close() error
}

// Producer wraps a franz-go client. Topics are never auto-created: consent
// and audit topics carry partition counts chosen at provisioning time.
type Producer struct {
	client  *kgo.Client
	logger  *slog.Logger
	metrics *Metrics
	mu      sync.RWMutex
	closed  bool
}

// Metrics counts delivery outcomes per topic.
type Metrics struct {
	Delivered *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_kafka_records_delivered_total",
			Help: "Records acknowledged by the broker, by topic",
		}, []string{"topic"}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cidledger_kafka_records_failed_total",
			Help: "Records that could not be delivered, by topic",
		}, []string{"topic"}),
	}
}

func (m *Metrics) observe(topic string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Failed.WithLabelValues(topic).Inc()
		return
	}
	m.Delivered.WithLabelValues(topic).Inc()
}

type Option func(*Producer)

func WithMetrics(m *Metrics) Option {
	return func(p *Producer) {
		p.metrics = m
	}
}

type Config struct {
	Brokers         string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

func New(cfg Config, logger *slog.Logger, opts ...Option) (*Producer, error) {
	if strings.TrimSpace(cfg.Brokers) == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	var acks kgo.Acks
	switch cfg.Acks {
	case "0":
		acks = kgo.NoAck()
	case "1":
		acks = kgo.LeaderAck()
	default:
		acks = kgo.AllISRAcks()
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.RequiredAcks(acks),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		// Records keyed by CID must keep their chain order within a partition.
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	}
	if acks != kgo.AllISRAcks() {
		kopts = append(kopts, kgo.DisableIdempotentWrite())
	}
	if cfg.DeliveryTimeout > 0 {
		kopts = append(kopts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := &Producer{client: client, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Producer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func toRecord(msg *Message) *kgo.Record {
	headers := make([]kgo.RecordHeader, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return &kgo.Record{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Headers: headers}
}

// Produce publishes synchronously and returns once the broker acknowledged.
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if p.isClosed() {
		return ErrClosed
	}
	err := p.client.ProduceSync(ctx, toRecord(msg)).FirstErr()
	p.metrics.observe(msg.Topic, err)
	if err != nil {
		return fmt.Errorf("produce message: %w", err)
	}
	return nil
}

// ProduceAsync buffers the record; delivery failures are logged.
func (p *Producer) ProduceAsync(msg *Message) error {
	if p.isClosed() {
		return ErrClosed
	}
	p.client.Produce(context.Background(), toRecord(msg), func(r *kgo.Record, err error) {
		p.metrics.observe(r.Topic, err)
		if err != nil && p.logger != nil {
			p.logger.Error("kafka delivery failed",
				"topic", r.Topic,
				"key", string(r.Key),
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes buffered records (up to 30s) and releases the client.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil && p.logger != nil {
		p.logger.Warn("kafka producer closed with unflushed messages", "error", err)
	}
	p.client.Close()
	return nil
}

func (p *Producer) Healthy(ctx context.Context) bool {
	if p.isClosed() {
		return false
	}
	return p.client.Ping(ctx) == nil
}

// NoopProducer discards every message. Used when Kafka is disabled.
type NoopProducer struct{}

func NewNoopProducer() *NoopProducer { return &NoopProducer{} }

func (NoopProducer) Produce(context.Context, *Message) error { return nil }
func (NoopProducer) ProduceAsync(*Message) error             { return nil }
func (NoopProducer) Healthy(context.Context) bool            { return true }
func (NoopProducer) Close() error                            { return nil }

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = (*NoopProducer)(nil)
)
