package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter exposes the writer seam to the external tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewPublisherWithWriter builds a Publisher around w.
func NewPublisherWithWriter(w MessageWriter, topic string) *Publisher {
	return newPublisher(w, topic, nil)
}
