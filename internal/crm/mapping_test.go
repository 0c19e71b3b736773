package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dealerdesk/pkg/models"
)

func TestContactFromCustomer(t *testing.T) {
	contact := ContactFromCustomer(models.Customer{
		ID:        "cust_1",
		Email:     "dana@example.com",
		FirstName: "Dana",
		LastName:  "Reyes",
		Phone:     "555-0101",
		Source:    "walk-in",
	})

	assert.Equal(t, "cust_1", contact.ExternalID)
	assert.Equal(t, "Dana Reyes", contact.FullName)
	assert.Equal(t, "dana@example.com", contact.Email)
}

func TestContactFromCustomerPartialName(t *testing.T) {
	contact := ContactFromCustomer(models.Customer{ID: "cust_2", Email: "x@example.com", FirstName: "Sam"})
	assert.Equal(t, "Sam", contact.FullName)
}

func TestDealStageMapping(t *testing.T) {
	cases := []struct {
		status models.SubscriptionStatus
		stage  string
	}{
		{models.SubscriptionActive, "closed_won"},
		{models.SubscriptionPastDue, "at_risk"},
		{models.SubscriptionCancelled, "churned"},
		{models.SubscriptionExpired, "closed_lost"},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			deal := DealFromSubscription(models.SubscriptionState{
				SubscriptionID: "sub_1",
				CustomerID:     "cust_1",
				Status:         tc.status,
			})
			assert.Equal(t, tc.stage, deal.Stage)
		})
	}
}

func TestActivityFromStatusChange(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	activity := ActivityFromStatusChange("cust_1", models.StatusChange{
		ConversationID: "conv_1",
		From:           models.StatusOpen,
		To:             models.StatusResolved,
		Actor:          "staff_9",
		OccurredAt:     at,
	})

	assert.Equal(t, "cust_1", activity.ContactID)
	assert.Equal(t, "conversation_status", activity.Kind)
	assert.Contains(t, activity.Subject, "open -> resolved")
	assert.Equal(t, at, activity.OccurredAt)
}
