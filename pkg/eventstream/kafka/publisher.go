// Package kafka publishes pack events to a Kafka topic using
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/drills/pkg/eventstream"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "drills.pack.ready"

// Config is the configuration options for the Kafka publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses, e.g. "localhost:9092".
	Brokers []string

	// Topic is the destination topic (defaults to DefaultTopic).
	Topic string

	// WriteTimeout bounds a single write (defaults to 10s).
	WriteTimeout time.Duration

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// messageWriter is the part of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes PackReadyEvents as JSON messages keyed by user id, so
// one user's events stay ordered on a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher with a kafka-go Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		WriteTimeout:           c.WriteTimeout,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, c.Topic, c.Logger), nil
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// PublishPackReady writes one event.
func (p *Publisher) PublishPackReady(ctx context.Context, event *eventstream.PackReadyEvent) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to %s: %w", p.topic, err)
	}
	p.logger.Debug("published pack event",
		"topic", p.topic,
		"event_id", event.EventID,
		"user_id", event.UserID,
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encode(event *eventstream.PackReadyEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilPackEvent
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding pack event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}, nil
}
