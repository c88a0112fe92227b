package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/service"
)

// Ensure KafkaPublisher implements service.NotificationPort
var _ service.NotificationPort = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes domain events to the notifications topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.LoggerV2
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.LoggerV2) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.NotificationsTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return newPublisher(writer, cfg.NotificationsTopic, logger)
}

func newPublisher(writer messageWriter, topic string, logger *logging.LoggerV2) *KafkaPublisher {
	if logger == nil {
		logger = logging.NewLoggerV2("event-publisher")
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// Publish writes one event keyed by its aggregate id, so events for the same
// order or withdrawal land on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event *models.DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":     event.ID,
			"event_type":   string(event.Type),
			"aggregate_id": event.AggregateID,
			"topic":        p.topic,
			"error":        err.Error(),
		})
		return err
	}

	p.logger.Debug("Event published", logging.Fields{
		"event_id":     event.ID,
		"event_type":   string(event.Type),
		"aggregate_id": event.AggregateID,
	})
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}
