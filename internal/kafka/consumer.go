package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SettingsApplier receives event settings changes from the event service.
type SettingsApplier interface {
	ApplySettings(ctx context.Context, update models.EventSettingsUpdate) error
}

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log}
}

// Start consumes settings updates until ctx is cancelled. Malformed messages
// are committed and skipped; messages whose handler fails are left uncommitted
// so they are redelivered after a restart.
func (c *Consumer) Start(ctx context.Context, applier SettingsApplier) error {
	c.Logger.Info("KAFKA", "Settings consumer started")

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		if err := c.handle(ctx, msg, applier); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Failed to apply settings from offset %d: %v", msg.Offset, err))
			continue
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Commit failed at offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, applier SettingsApplier) error {
	var update models.EventSettingsUpdate
	if err := json.Unmarshal(msg.Value, &update); err != nil {
		c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal settings message: %v", err))
		return nil
	}

	c.Logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("settings for event %s", update.EventID))
	return applier.ApplySettings(ctx, update)
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
