// Package events defines the domain events that cross component boundaries
// and the in-process bus that fans them out. Handlers receive plain domain
// structs; the orchestration core never touches a transport-layer type.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dealerdesk/pkg/models"
)

// Kind identifies an event type
type Kind string

const (
	KindCustomerRegistered  Kind = "customer.registered"
	KindConversationCreated Kind = "conversation.created"
	KindStatusChanged       Kind = "conversation.status_changed"
	KindMessageSent         Kind = "message.sent"
	KindSubscriptionChanged Kind = "subscription.changed"
	KindPaymentRecorded     Kind = "payment.recorded"
)

// Event is the envelope published on the bus
type Event struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	EntityID   string          `json:"entity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New builds an event envelope with a fresh id. The payload must marshal
// cleanly; events are constructed from our own structs so a failure here is
// a programming error and yields an empty payload.
func New(kind Kind, entityID string, payload interface{}) Event {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
}

// CustomerRegisteredPayload accompanies KindCustomerRegistered
type CustomerRegisteredPayload struct {
	Customer models.Customer `json:"customer"`
}

// ConversationCreatedPayload accompanies KindConversationCreated
type ConversationCreatedPayload struct {
	Conversation models.Conversation `json:"conversation"`
}

// StatusChangedPayload accompanies KindStatusChanged
type StatusChangedPayload struct {
	Change     models.StatusChange `json:"change"`
	CustomerID string              `json:"customer_id"`
}

// MessageSentPayload accompanies KindMessageSent
type MessageSentPayload struct {
	Message    models.Message `json:"message"`
	CustomerID string         `json:"customer_id"`
}

// SubscriptionChangedPayload accompanies KindSubscriptionChanged and
// KindPaymentRecorded
type SubscriptionChangedPayload struct {
	State         models.SubscriptionState `json:"state"`
	ProviderEvent string                   `json:"provider_event"`
	EventID       string                   `json:"event_id"`
}
