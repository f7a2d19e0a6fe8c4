package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer  MessageWriter
	Topic   string
	Timeout time.Duration
	Logger  *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, Timeout: 5 * time.Second, Logger: log}
}

// PublishCheckin streams a check-in to Kafka, keyed by ticket so every
// message for one ticket lands on the same partition.
func (p *Producer) PublishCheckin(ctx context.Context, event models.CheckinEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	p.Logger.LogKafka("PUBLISH", p.Topic, fmt.Sprintf("ticket %s checked in at event %s", event.TicketID, event.EventID))
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TicketID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("ticket.checked_in")},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish check-in of %s: %w", event.TicketID, err)
	}
	return nil
}

// NotifyCheckin lets the producer stand in as the check-in notifier.
func (p *Producer) NotifyCheckin(ctx context.Context, event models.CheckinEvent) error {
	return p.PublishCheckin(ctx, event)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
