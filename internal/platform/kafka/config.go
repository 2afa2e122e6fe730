package kafka

import (
	"strings"

	"cidledger/internal/platform/config"
	"cidledger/internal/platform/kafka/consumer"
	"cidledger/internal/platform/kafka/producer"
)

// ProducerConfig maps server configuration onto producer settings.
func ProducerConfig(cfg config.KafkaConfig) producer.Config {
	return producer.Config{
		Brokers:         cfg.Brokers,
		Acks:            cfg.Acks,
		Retries:         cfg.Retries,
		DeliveryTimeout: cfg.DeliveryTimeout.Duration,
	}
}

// AuditConsumerConfig maps server configuration onto the audit sink consumer.
func AuditConsumerConfig(cfg config.KafkaConfig) consumer.Config {
	return consumer.Config{
		Brokers: cfg.Brokers,
		GroupID: cfg.AuditGroupID,
		Topics:  []string{cfg.AuditTopic},
	}
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
