package models

import "time"

// EventType names a domain event emitted to the notification sink.
type EventType string

const (
	EventOrderCreated            EventType = "order.created"
	EventOrderSettled            EventType = "order.settled"
	EventOrderSettlementFault    EventType = "order.settlement_fault"
	EventOrdersExpired           EventType = "orders.expired"
	EventWithdrawalRequested     EventType = "withdrawal.requested"
	EventWithdrawalStatusChanged EventType = "withdrawal.status_changed"
)

// DomainEvent is a fire-and-forget message describing something that happened in the core.
type DomainEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	UserID      string                 `json:"user_id,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}
