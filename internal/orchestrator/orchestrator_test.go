package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerdesk/internal/crm"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/pkg/models"
)

type fakeQueue struct {
	jobs    []CRMSyncJobArgs
	failFor map[string]error
}

func (q *fakeQueue) Enqueue(ctx context.Context, args CRMSyncJobArgs) error {
	if err := q.failFor[args.SyncKind]; err != nil {
		return err
	}
	q.jobs = append(q.jobs, args)
	return nil
}

func newTestOrchestrator() (*Orchestrator, *fakeQueue, *events.Bus) {
	queue := &fakeQueue{failFor: map[string]error{}}
	o := New(queue)
	bus := events.NewBus()
	o.Register(bus)
	return o, queue, bus
}

func TestCustomerRegisteredEnqueuesContactSync(t *testing.T) {
	_, queue, bus := newTestOrchestrator()

	customer := models.Customer{ID: "cust_1", Email: "dana@example.com"}
	bus.Publish(context.Background(), events.New(events.KindCustomerRegistered, customer.ID,
		events.CustomerRegisteredPayload{Customer: customer}))

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, crm.KindContact, queue.jobs[0].SyncKind)
	require.NotNil(t, queue.jobs[0].Customer)
	assert.Equal(t, "cust_1", queue.jobs[0].Customer.ID)
}

func TestSubscriptionChangedEnqueuesDealSync(t *testing.T) {
	_, queue, bus := newTestOrchestrator()

	state := models.SubscriptionState{SubscriptionID: "sub_1", Status: models.SubscriptionActive}
	bus.Publish(context.Background(), events.New(events.KindSubscriptionChanged, state.SubscriptionID,
		events.SubscriptionChangedPayload{State: state, EventID: "evt_1"}))

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, crm.KindDeal, queue.jobs[0].SyncKind)
}

func TestPaymentRecordedAlsoEnqueuesDealSync(t *testing.T) {
	_, queue, bus := newTestOrchestrator()

	state := models.SubscriptionState{SubscriptionID: "sub_1", Status: models.SubscriptionActive}
	bus.Publish(context.Background(), events.New(events.KindPaymentRecorded, state.SubscriptionID,
		events.SubscriptionChangedPayload{State: state, EventID: "evt_2"}))

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, crm.KindDeal, queue.jobs[0].SyncKind)
}

func TestStatusChangedEnqueuesActivity(t *testing.T) {
	_, queue, bus := newTestOrchestrator()

	change := models.StatusChange{
		ConversationID: "conv_1",
		From:           models.StatusOpen,
		To:             models.StatusResolved,
		Actor:          "staff_1",
		OccurredAt:     time.Now().UTC(),
	}
	bus.Publish(context.Background(), events.New(events.KindStatusChanged, change.ConversationID,
		events.StatusChangedPayload{Change: change, CustomerID: "cust_1"}))

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, crm.KindActivity, queue.jobs[0].SyncKind)
	assert.Equal(t, "cust_1", queue.jobs[0].CustomerID)
}

func TestMessageSentEnqueuesActivity(t *testing.T) {
	_, queue, bus := newTestOrchestrator()

	msg := models.Message{
		ID:             "msg_1",
		ConversationID: "conv_1",
		Sender:         models.SenderStaff,
		CreatedAt:      time.Now().UTC(),
	}
	bus.Publish(context.Background(), events.New(events.KindMessageSent, msg.ConversationID,
		events.MessageSentPayload{Message: msg, CustomerID: "cust_1"}))

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, crm.KindActivity, queue.jobs[0].SyncKind)
	assert.Equal(t, "cust_1", queue.jobs[0].CustomerID)
	require.NotNil(t, queue.jobs[0].Message)
	assert.Equal(t, "msg_1", queue.jobs[0].Message.ID)
}

func TestEnqueueFailureIsAbsorbedByBus(t *testing.T) {
	_, queue, bus := newTestOrchestrator()
	queue.failFor[crm.KindContact] = errors.New("queue unavailable")

	// Publish must not panic or propagate the enqueue failure.
	customer := models.Customer{ID: "cust_1", Email: "dana@example.com"}
	bus.Publish(context.Background(), events.New(events.KindCustomerRegistered, customer.ID,
		events.CustomerRegisteredPayload{Customer: customer}))

	assert.Empty(t, queue.jobs)
}

func TestTargetsFanOutIndependently(t *testing.T) {
	queue := &fakeQueue{failFor: map[string]error{crm.KindDeal: errors.New("boom")}}
	o := New(queue)
	bus := events.NewBus()
	o.Register(bus)

	// A deal enqueue failure must not stop the activity fan-out of a later
	// event, and vice versa.
	state := models.SubscriptionState{SubscriptionID: "sub_1", Status: models.SubscriptionActive}
	bus.Publish(context.Background(), events.New(events.KindSubscriptionChanged, state.SubscriptionID,
		events.SubscriptionChangedPayload{State: state}))

	change := models.StatusChange{ConversationID: "conv_1", From: models.StatusOpen, To: models.StatusPending}
	bus.Publish(context.Background(), events.New(events.KindStatusChanged, change.ConversationID,
		events.StatusChangedPayload{Change: change, CustomerID: "cust_1"}))

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, crm.KindActivity, queue.jobs[0].SyncKind)
}
