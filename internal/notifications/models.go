package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle change that display and delivery collaborators consume
type EventType string

const (
	EventBookingCreated         EventType = "booking.created"
	EventBookingStatusChanged   EventType = "booking.status_changed"
	EventPaymentAuthorized      EventType = "payment.authorized"
	EventPaymentCaptured        EventType = "payment.captured"
	EventPaymentVoided          EventType = "payment.voided"
	EventPaymentRefunded        EventType = "payment.refunded"
	EventPaymentCharged         EventType = "payment.charged"
	EventCancellationRequested  EventType = "cancellation.requested"
	EventCancellationResolved   EventType = "cancellation.resolved"
	EventCheckoutStatusChanged  EventType = "checkout.status_changed"
	EventPenaltyStatusChanged   EventType = "penalty.status_changed"
	EventExtensionStatusChanged EventType = "extension.status_changed"
)

// DomainEvent is the envelope written to the booking events topic
type DomainEvent struct {
	ID          uuid.UUID              `json:"id"`
	Type        EventType              `json:"type"`
	GroupID     uuid.UUID              `json:"group_id"`
	AggregateID uuid.UUID              `json:"aggregate_id"`
	Aggregate   string                 `json:"aggregate"`
	ActorID     *uuid.UUID             `json:"actor_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// NewDomainEvent stamps an event with a fresh id and the current UTC time
func NewDomainEvent(t EventType, aggregate string, aggregateID, groupID uuid.UUID, data map[string]interface{}) DomainEvent {
	return DomainEvent{
		ID:          uuid.New(),
		Type:        t,
		GroupID:     groupID,
		AggregateID: aggregateID,
		Aggregate:   aggregate,
		Data:        data,
		OccurredAt:  time.Now().UTC(),
	}
}

// WithActor records who caused the change
func (e DomainEvent) WithActor(id uuid.UUID) DomainEvent {
	e.ActorID = &id
	return e
}

// PartitionKey keeps every event of one booking group on the same partition
func (e DomainEvent) PartitionKey() string {
	return e.GroupID.String()
}

// ToJSON serializes the event
func (e DomainEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
