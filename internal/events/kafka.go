package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaBackend publishes migration lifecycle events to a Kafka topic,
// adapted from the webhook notifier's Kafka backend.
type KafkaBackend struct {
	writer *kafka.Writer
}

func NewKafkaBackend(brokers []string, topic string) *KafkaBackend {
	return &KafkaBackend{writer: &kafka.Writer{
		Addr: kafka.TCP(brokers...),
		Topic: topic,
		Balancer: &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		Async: true,
	}}
}

func (k *KafkaBackend) Name() string { return "kafka" }

func (k *KafkaBackend) Publish(ctx context.Context, evt Event) error {
	payload, err := marshal(evt)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

func (k *KafkaBackend) Close() error { return k.writer.Close() }

var _ Backend = (*KafkaBackend)(nil)
