// Package billing processes inbound billing provider webhooks into the
// SubscriptionState projection. Delivery is at-least-once and unordered;
// correctness comes from the idempotency ledger and a last-event-wins
// conditional write.
package billing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

// Provider event types we understand
const (
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// Event is the provider's webhook payload
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       EventData `json:"data"`
}

// EventData carries the subscription fields of an event
type EventData struct {
	SubscriptionID string `json:"subscription_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status,omitempty"`
	Tier           string `json:"tier,omitempty"`
	Renewal        bool   `json:"renewal,omitempty"`
}

// parseEvent decodes and validates the raw webhook body
func parseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, errs.Validation("body", "not valid JSON")
	}
	if strings.TrimSpace(ev.ID) == "" {
		return ev, errs.Validation("id", "required")
	}
	if ev.OccurredAt.IsZero() {
		return ev, errs.Validation("occurred_at", "required")
	}
	if strings.TrimSpace(ev.Data.SubscriptionID) == "" {
		return ev, errs.Validation("data.subscription_id", "required")
	}
	return ev, nil
}

// isPayment reports whether the event is a payment rather than a lifecycle
// change
func (e Event) isPayment() bool {
	return e.Type == EventPaymentSucceeded || e.Type == EventPaymentFailed
}

// statusFor maps the event to the resulting subscription status. The second
// return is false for event types we do not recognize.
func statusFor(ev Event) (models.SubscriptionStatus, bool) {
	switch ev.Type {
	case EventPaymentSucceeded, EventSubscriptionCreated:
		return models.SubscriptionActive, true
	case EventPaymentFailed:
		return models.SubscriptionPastDue, true
	case EventSubscriptionCancelled:
		return models.SubscriptionCancelled, true
	case EventSubscriptionUpdated:
		switch models.SubscriptionStatus(ev.Data.Status) {
		case models.SubscriptionActive, models.SubscriptionCancelled,
			models.SubscriptionExpired, models.SubscriptionPastDue:
			return models.SubscriptionStatus(ev.Data.Status), true
		}
		return "", false
	default:
		return "", false
	}
}
