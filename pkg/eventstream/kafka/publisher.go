// Package kafka publishes reply events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/localmind/smriti/pkg/eventstream"
	"github.com/localmind/smriti/pkg/logger"
)

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
	Logger  *slog.Logger
}

// messageWriter is the part of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each reply event as one JSON message keyed by chat key,
// so the events of a chat land on one partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a publisher writing to cfg.Topic on cfg.Brokers.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return newPublisher(w, cfg.Topic, cfg.Logger), nil
}

func newPublisher(w messageWriter, topic string, l *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger.OrNop(l),
	}
}

// PublishReply encodes event and writes it to the topic.
func (p *Publisher) PublishReply(ctx context.Context, event *eventstream.ReplyEvent) error {
	if event == nil {
		return eventstream.ErrNilReplyEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling reply event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Reply.ChatKey),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing reply event to %s: %w", p.topic, err)
	}

	p.logger.Debug("published reply event",
		"topic", p.topic,
		"event_type", event.EventType,
		"event_id", event.EventID,
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
