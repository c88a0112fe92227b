package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// CallbackHandler settles an inbound payment callback.
type CallbackHandler interface {
	HandlePaymentCallback(ctx context.Context, cb *models.PaymentCallback) (*models.Order, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// PaymentCallbackConsumer feeds provider callbacks relayed onto the callbacks
// topic into the same path the webhook handlers use.
type PaymentCallbackConsumer struct {
	reader   messageReader
	handler  CallbackHandler
	logger   *logging.LoggerV2
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPaymentCallbackConsumer creates a new Kafka-based callback consumer.
func NewPaymentCallbackConsumer(cfg config.KafkaConfig, handler CallbackHandler, logger *logging.LoggerV2) *PaymentCallbackConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.PaymentCallbacksTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return newConsumer(reader, handler, logger)
}

func newConsumer(reader messageReader, handler CallbackHandler, logger *logging.LoggerV2) *PaymentCallbackConsumer {
	if logger == nil {
		logger = logging.NewLoggerV2("callback-consumer")
	}
	return &PaymentCallbackConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start consumes until ctx is done or Stop is called.
func (c *PaymentCallbackConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting payment callback consumer")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			c.logger.Info("Payment callback consumer stopped")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				select {
				case <-c.stopCh:
					return nil
				default:
				}
				c.logger.Error("Failed to read message", logging.Fields{"error": err.Error()})
				continue
			}

			c.handleMessage(ctx, msg)
		}
	}
}

// Stop stops the consumer.
func (c *PaymentCallbackConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.reader.Close()
	})
}

func (c *PaymentCallbackConsumer) handleMessage(ctx context.Context, msg kafka.Message) {
	c.logger.Debug("Received message", logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	cb, err := decodeCallback(msg)
	if err != nil {
		c.logger.Error("Failed to decode payment callback", logging.Fields{
			"offset": msg.Offset,
			"error":  err.Error(),
		})
		return
	}

	order, err := c.handler.HandlePaymentCallback(ctx, cb)
	if err != nil {
		fields := logging.Fields{
			"provider":  cb.Provider,
			"reference": cb.Reference,
			"kind":      string(errors.KindOf(err)),
			"error":     err.Error(),
		}
		// Providers retry their own callbacks.
		if k := errors.KindOf(err); k == errors.KindExternalProvider || k == errors.KindValidation || k == errors.KindNotFound {
			c.logger.Warn("Payment callback not settled", fields)
		} else {
			c.logger.Error("Payment callback failed", fields)
		}
		return
	}

	c.logger.Info("Payment callback handled", logging.Fields{
		"order_id": order.ID,
		"status":   string(order.Status),
	})
}

// decodeCallback reads a {"provider","reference"} body. A missing provider is
// taken from the "provider" header.
func decodeCallback(msg kafka.Message) (*models.PaymentCallback, error) {
	var cb models.PaymentCallback
	if err := json.Unmarshal(msg.Value, &cb); err != nil {
		return nil, err
	}
	if cb.Provider == "" {
		for _, h := range msg.Headers {
			if h.Key == "provider" {
				cb.Provider = strings.ToLower(string(h.Value))
			}
		}
	}
	if strings.TrimSpace(cb.Reference) == "" {
		return nil, errors.NewValidationError("reference", "callback reference is required")
	}
	return &cb, nil
}
