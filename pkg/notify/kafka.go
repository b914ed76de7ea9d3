// Package notify forwards alerts to external notification channels. The
// engine hands alerts off fire-and-forget; delivery retries live here and
// in the broker client, never in the pipeline.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp/types"
)

// KafkaConfig configures the alert notifier producer.
type KafkaConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	BootstrapServers string `yaml:"bootstrap_servers" json:"bootstrap_servers"`
	Topic            string `yaml:"topic" json:"topic"`
	ClientID         string `yaml:"client_id" json:"client_id"`
	Acks             string `yaml:"acks" json:"acks"`
	Retries          int    `yaml:"retries" json:"retries"`
	CompressionType  string `yaml:"compression_type" json:"compression_type"`
}

// DefaultKafkaConfig returns producer defaults.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		BootstrapServers: "localhost:9092",
		Topic:            "cybersentinel.alerts",
		ClientID:         "cybersentinel-dlp-core",
		Acks:             "all",
		Retries:          3,
		CompressionType:  "snappy",
	}
}

// KafkaNotifier publishes alerts to a Kafka topic.
type KafkaNotifier struct {
	producer *kafka.Producer
	cfg      KafkaConfig
	logger   *zap.Logger
}

// notification is the wire envelope published per alert.
type notification struct {
	Alert    *types.Alert      `json:"alert"`
	Channels string            `json:"channels,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// NewKafkaNotifier creates and starts the producer. A background goroutine
// drains delivery reports; failed deliveries are logged, not retried by
// the caller.
func NewKafkaNotifier(cfg KafkaConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
		"client.id":         cfg.ClientID,
		"acks":              cfg.Acks,
		"retries":           cfg.Retries,
		"compression.type":  cfg.CompressionType,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	n := &KafkaNotifier{producer: producer, cfg: cfg, logger: logger}
	go n.drainEvents()
	return n, nil
}

// Notify publishes the alert keyed by its event identifier so alerts for
// one event land in one partition.
func (n *KafkaNotifier) Notify(ctx context.Context, alert *types.Alert, params map[string]string) error {
	payload, err := json.Marshal(notification{
		Alert:    alert,
		Channels: params["channels"],
		Params:   params,
	})
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", alert.ID, err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &n.cfg.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(alert.EventID),
		Value:          payload,
	}

	if err := n.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("produce alert %s: %w", alert.ID, err)
	}
	return nil
}

// drainEvents logs asynchronous delivery failures.
func (n *KafkaNotifier) drainEvents() {
	for ev := range n.producer.Events() {
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			n.logger.Error("alert delivery failed",
				zap.String("topic", n.cfg.Topic),
				zap.Error(m.TopicPartition.Error))
		}
	}
}

// Close flushes outstanding messages and shuts the producer down.
func (n *KafkaNotifier) Close() {
	n.producer.Flush(5000)
	n.producer.Close()
}
