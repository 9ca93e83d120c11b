package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tradetools/tradetools-server/internal/models"
)

// TradeRepository defines the interface for trade database operations
type TradeRepository interface {
	InsertTradeIfAbsent(t *models.Trade) (bool, error)
}

// TradeEvent represents a broker trade-confirm event from Kafka
type TradeEvent struct {
	EventType string       `json:"event_type"`
	Source    string       `json:"source"`
	Timestamp string       `json:"timestamp"`
	Data      models.Trade `json:"data"`
}

// Consumer handles consuming trade-confirm events from Kafka
type Consumer struct {
	reader *kafka.Reader
	repo   TradeRepository
}

// NewConsumer creates a new Kafka consumer for trade-confirm events
func NewConsumer(brokers []string, topic, groupID string, repo TradeRepository) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-trades",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		repo:   repo,
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting trade consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Trade consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading trade message: %v", err)
				continue
			}

			if err := c.processMessage(msg); err != nil {
				log.Printf("Error processing trade message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(msg kafka.Message) error {
	log.Printf("Received trade message from partition %d offset %d: key=%s",
		msg.Partition, msg.Offset, string(msg.Key))

	var event TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal trade event: %w", err)
	}

	if event.EventType != "TRADE_CONFIRM" {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}

	trade := event.Data
	if trade.TradeID == "" || trade.Symbol == "" || trade.Quantity == 0 {
		return fmt.Errorf("invalid trade event: id=%q symbol=%q qty=%v",
			trade.TradeID, trade.Symbol, trade.Quantity)
	}

	inserted, err := c.repo.InsertTradeIfAbsent(&trade)
	if err != nil {
		return fmt.Errorf("failed to record trade %s: %w", trade.TradeID, err)
	}
	if inserted {
		log.Printf("Recorded trade %s: %s %v @ %v", trade.TradeID, trade.Symbol, trade.Quantity, trade.TradePrice)
	} else {
		log.Printf("Trade %s already recorded, skipping", trade.TradeID)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
