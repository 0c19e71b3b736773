// Package crm syncs dealership entities to the external CRM. Sync is
// fire-and-forget: a CRM failure is journaled and retried but never fails
// the primary action that triggered it.
package crm

import (
	"fmt"
	"strings"
	"time"

	"github.com/dealerdesk/pkg/models"
)

// Contact is the CRM-side representation of a customer
type Contact struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Deal is the CRM-side representation of a subscription relationship
type Deal struct {
	ExternalID string `json:"external_id"`
	ContactID  string `json:"contact_id"`
	Stage      string `json:"stage"`
	Tier       string `json:"tier,omitempty"`
	Renewal    bool   `json:"renewal"`
}

// Activity is a timeline entry logged against a CRM contact
type Activity struct {
	ContactID  string    `json:"contact_id"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ContactFromCustomer maps the dealership customer record to a CRM contact
func ContactFromCustomer(c models.Customer) Contact {
	return Contact{
		ExternalID: c.ID,
		Email:      c.Email,
		FullName:   strings.TrimSpace(c.FirstName + " " + c.LastName),
		Phone:      c.Phone,
		Source:     c.Source,
	}
}

// DealFromSubscription maps the billing projection to a CRM deal
func DealFromSubscription(s models.SubscriptionState) Deal {
	return Deal{
		ExternalID: s.SubscriptionID,
		ContactID:  s.CustomerID,
		Stage:      stageForStatus(s.Status),
		Tier:       s.Tier,
		Renewal:    s.Renewal,
	}
}

// ActivityFromStatusChange logs a conversation transition on the contact's
// timeline
func ActivityFromStatusChange(customerID string, change models.StatusChange) Activity {
	return Activity{
		ContactID:  customerID,
		Kind:       "conversation_status",
		Subject:    fmt.Sprintf("conversation %s: %s -> %s", change.ConversationID, change.From, change.To),
		OccurredAt: change.OccurredAt,
	}
}

// ActivityFromMessage logs a sent message on the contact's timeline. Only
// the fact of contact is recorded; the message body never leaves the console.
func ActivityFromMessage(customerID string, msg models.Message) Activity {
	return Activity{
		ContactID:  customerID,
		Kind:       "conversation_message",
		Subject:    fmt.Sprintf("conversation %s: %s message", msg.ConversationID, msg.Sender),
		OccurredAt: msg.CreatedAt,
	}
}

// stageForStatus translates subscription status to the CRM pipeline stage
func stageForStatus(status models.SubscriptionStatus) string {
	switch status {
	case models.SubscriptionActive:
		return "closed_won"
	case models.SubscriptionPastDue:
		return "at_risk"
	case models.SubscriptionCancelled:
		return "churned"
	case models.SubscriptionExpired:
		return "closed_lost"
	default:
		return "unknown"
	}
}
