package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes portfolio events to Kafka
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

type outboundEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (p *Producer) publish(ctx context.Context, key, eventType string, data map[string]any) error {
	event := outboundEvent{
		EventType: eventType,
		Source:    "tradetools-server",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

// PublishTradesImported announces a completed import run
func (p *Producer) PublishTradesImported(ctx context.Context, queryType string, count int) error {
	return p.publish(ctx, "import", "TRADES_IMPORTED", map[string]any{
		"query_type": queryType,
		"count":      count,
	})
}

// PublishPricesUpdated announces a mark-to-market refresh
func (p *Producer) PublishPricesUpdated(ctx context.Context, count int) error {
	return p.publish(ctx, "mtm", "PRICES_UPDATED", map[string]any{
		"count": count,
	})
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
