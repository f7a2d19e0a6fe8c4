package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader MessageReader
	topic  string
	logger *logger.Logger
}

// FeedGroupID gives this instance a consumer group of its own. Members of one
// group split the partitions, and every instance needs the whole feed.
func FeedGroupID(prefix string) string {
	if prefix == "" {
		prefix = "checkin-feed"
	}
	return prefix + "-" + uuid.NewString()
}

// NewConsumer creates a Kafka consumer for the given topic and group. A new
// group starts at the end of the topic; the feed is live only.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return NewConsumerWithReader(reader, topic, log)
}

func NewConsumerWithReader(reader MessageReader, topic string, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, topic: topic, logger: log}
}

// Start consumes check-in events until ctx is cancelled. Messages that do not
// decode are logged and committed so they cannot wedge the group.
func (c *Consumer) Start(ctx context.Context, handler func(models.CheckinEvent)) error {
	c.logger.LogKafka("CONSUME", c.topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("error reading message: %v", err))
			return err
		}

		var event models.CheckinEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("skipping unreadable message at offset %d: %v", msg.Offset, err))
		} else {
			handler(event)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("KAFKA", fmt.Sprintf("commit of offset %d failed: %v", msg.Offset, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
