package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Topics maps lifecycle event types to topic names.
type Topics struct {
	RegistrationCreated       string
	RegistrationStatusChanged string
}

type Producer struct {
	Writer MessageWriter
	Topics Topics
	Logger *logger.Logger
}

// NewProducer creates a writer without a fixed topic so each message picks its own.
func NewProducer(brokers []string, topics Topics, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

// PublishRegistrationEvent streams a lifecycle event keyed by registration id,
// so all changes to one registration stay ordered within a partition.
func (p *Producer) PublishRegistrationEvent(ctx context.Context, evt models.RegistrationEventDto) error {
	topic, err := p.topicFor(evt.Type)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s registration %s", evt.Type, evt.RegistrationID))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Topic: topic,
			Key:   []byte(evt.RegistrationID.String()),
			Value: msgBytes,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(evt.Type)},
			},
		},
	)
}

func (p *Producer) topicFor(eventType string) (string, error) {
	switch eventType {
	case models.EventRegistrationCreated:
		return p.Topics.RegistrationCreated, nil
	case models.EventRegistrationStatusChanged:
		return p.Topics.RegistrationStatusChanged, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", eventType)
	}
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
