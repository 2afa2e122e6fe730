//go:build integration

package containers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer runs a single Redpanda broker, which speaks the Kafka
// protocol and starts much faster than a JVM broker.
type KafkaContainer struct {
	Brokers string
	admin   *kadm.Client
	client  *kgo.Client
}

func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()
	ctx := context.Background()

	container, err := kafka.Run(ctx, "redpandadata/redpanda:latest", kafka.WithClusterID("cidledger-test"))
	if err != nil {
		t.Fatalf("start kafka container: %v", err)
	}
	brokers, err := container.Brokers(ctx)
	if err != nil || len(brokers) == 0 {
		_ = container.Terminate(ctx)
		t.Fatalf("kafka brokers: %v", err)
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers[0]))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("kafka admin client: %v", err)
	}
	// Shared by the Manager; Ryuk reaps the container when the process exits.
	return &KafkaContainer{Brokers: brokers[0], admin: kadm.NewClient(client), client: client}
}

// CreateTopic creates topic, tolerating one that already exists so suites
// can share the broker.
func (k *KafkaContainer) CreateTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	resp, err := k.admin.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// CommittedOffset returns the next offset group will read from partition 0
// of topic, or -1 when the group has committed nothing.
func (k *KafkaContainer) CommittedOffset(ctx context.Context, group, topic string) (int64, error) {
	offsets, err := k.admin.FetchOffsets(ctx, group)
	if err != nil {
		return -1, fmt.Errorf("fetch offsets for %s: %w", group, err)
	}
	o, ok := offsets.Lookup(topic, 0)
	if !ok {
		return -1, nil
	}
	if o.Err != nil {
		return -1, o.Err
	}
	return o.At, nil
}

// Collect reads topic from the beginning under a throwaway group until match
// reports done or timeout elapses, returning every record seen.
func (k *KafkaContainer) Collect(ctx context.Context, group, topic string, timeout time.Duration, done func([]*kgo.Record) bool) ([]*kgo.Record, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var records []*kgo.Record
	for !done(records) {
		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return records, fmt.Errorf("collect %s: %w", topic, context.DeadlineExceeded)
		}
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records, nil
}
