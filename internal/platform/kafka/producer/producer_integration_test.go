//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"cidledger/internal/platform/kafka/producer"
	"cidledger/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
	metrics  *producer.Metrics
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	s.metrics = producer.NewMetricsWith(prometheus.NewRegistry())
	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil, producer.WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

// Records with the same key stay in publication order.
func (s *ProducerIntegrationSuite) TestSameKeyPreservesOrder() {
	ctx := context.Background()
	topic := "test-consent-order"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 3, 1))

	key := []byte("CID-00000000000000aa")
	for _, v := range []string{"1", "2", "3"} {
		s.Require().NoError(s.producer.Produce(ctx, &producer.Message{Topic: topic, Key: key, Value: []byte(v)}))
	}

	records, err := s.kafka.Collect(ctx, "order-check", topic, 15*time.Second, func(rs []*kgo.Record) bool {
		return len(rs) >= 3
	})
	s.Require().NoError(err)

	var got []string
	for _, r := range records {
		got = append(got, string(r.Value))
	}
	s.Equal([]string{"1", "2", "3"}, got)
	s.Equal(float64(3), testutil.ToFloat64(s.metrics.Delivered.WithLabelValues(topic)))
}

func (s *ProducerIntegrationSuite) TestProduceAfterClose() {
	prod, err := producer.New(producer.Config{Brokers: s.kafka.Brokers}, nil)
	s.Require().NoError(err)
	s.True(prod.Healthy(context.Background()))
	s.Require().NoError(prod.Close())

	err = prod.Produce(context.Background(), &producer.Message{Topic: "x"})
	s.ErrorIs(err, producer.ErrClosed)
	s.False(prod.Healthy(context.Background()))
}
