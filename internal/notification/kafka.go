package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"trading-alerts/internal/model"
)

// KafkaPublisher writes trigger events to a Kafka topic keyed by alert id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a synchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// PublishTrigger writes one event.
func (k *KafkaPublisher) PublishTrigger(ctx context.Context, ev model.TriggerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(ev.AlertID),
		Value: data,
		Time:  ev.TriggeredAt,
	})
	if err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
