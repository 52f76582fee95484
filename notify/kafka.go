package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes notification envelopes to a single topic, keyed by
// event id so the consumer's dedup store sees a stable partition per event.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("notify: kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("notify: kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

type envelope struct {
	EventID       string          `json:"event_id"`
	Kind          string          `json:"kind"`
	RecipientID   *string         `json:"recipient_id,omitempty"`
	RecipientRole string          `json:"recipient_role"`
	DisputeID     *string         `json:"dispute_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	EmittedAt     time.Time       `json:"emitted_at"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(envelope{
		EventID:       msg.EventID,
		Kind:          string(msg.Kind),
		RecipientID:   msg.RecipientID,
		RecipientRole: msg.RecipientRole,
		DisputeID:     msg.DisputeID,
		Payload:       json.RawMessage(msg.Payload),
		EmittedAt:     msg.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.EventID),
		Value: body,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
