package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// NotificationPort receives domain events for buyer and seller notifications.
// The core never waits on delivery.
type NotificationPort interface {
	Publish(ctx context.Context, event *models.DomainEvent) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, *models.DomainEvent) error { return nil }

const notifyTimeout = 10 * time.Second

func newEvent(eventType models.EventType, aggregateID, userID string, payload map[string]interface{}) *models.DomainEvent {
	return &models.DomainEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		UserID:      userID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// notify publishes in the background; failures are logged and dropped.
func notify(logger *logging.LoggerV2, port NotificationPort, event *models.DomainEvent) {
	if port == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := port.Publish(ctx, event); err != nil {
			logger.Warn("Failed to publish domain event", logging.Fields{
				"event_type":   event.Type,
				"aggregate_id": event.AggregateID,
				"error":        err.Error(),
			})
		}
	}()
}
