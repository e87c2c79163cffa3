// Package kafka publishes index events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/notevec/pkg/eventstream"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// DefaultTopic is the topic events are written to when none is configured.
const DefaultTopic = "notevec.index"

// Config holds configuration for the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per event, keyed by node id so events for a
// node stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a publisher. Brokers are contacted on first publish.
func NewPublisher(c Config, logger *slog.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", vector.ErrConfiguration)
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}, logger), nil
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, logger: logger}
}

// Publish encodes event as JSON and writes it.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.IndexEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := kafka.Message{
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if event.Node != nil {
		msg.Key = []byte(event.Node.ID)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published event", "event_type", event.EventType, "event_id", event.EventID)

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
