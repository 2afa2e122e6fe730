package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker reports ready once the cluster answers metadata requests and
// every topic the server produces to exists. Auto-created topics would get
// broker defaults, so a missing topic counts as not ready.
type HealthChecker struct {
	client *kgo.Client
	admin  *kadm.Client
	topics []string
}

func NewHealthChecker(brokers string, topics ...string) (*HealthChecker, error) {
	seeds := SplitBrokers(brokers)
	if len(seeds) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(seeds...))
	if err != nil {
		return nil, fmt.Errorf("create kafka admin client: %w", err)
	}
	return &HealthChecker{client: client, admin: kadm.NewClient(client), topics: topics}, nil
}

func (h *HealthChecker) Check(ctx context.Context) error {
	if len(h.topics) == 0 {
		if _, err := h.admin.ListBrokers(ctx); err != nil {
			return fmt.Errorf("list kafka brokers: %w", err)
		}
		return nil
	}
	details, err := h.admin.ListTopics(ctx, h.topics...)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	for _, topic := range h.topics {
		d, ok := details[topic]
		if !ok || d.Err != nil {
			return fmt.Errorf("kafka topic %s unavailable", topic)
		}
	}
	return nil
}

func (h *HealthChecker) Name() string {
	return "kafka"
}

func (h *HealthChecker) Close() {
	h.client.Close()
}
