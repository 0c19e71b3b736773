package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/dealerdesk/internal/crm"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/internal/logging"
)

// Enqueuer is the handoff to the durable job queue. The orchestrator issues
// the enqueue and returns; it never waits for the sync itself.
type Enqueuer interface {
	Enqueue(ctx context.Context, args CRMSyncJobArgs) error
}

// Orchestrator maps domain events to fan-out targets. It is stateless; all
// durability lives in the queue and the idempotency ledger.
type Orchestrator struct {
	queue Enqueuer
}

// New creates an orchestrator
func New(queue Enqueuer) *Orchestrator {
	return &Orchestrator{queue: queue}
}

// Register subscribes the orchestrator to the domain events it fans out
func (o *Orchestrator) Register(bus *events.Bus) {
	bus.Subscribe(events.KindCustomerRegistered, o.onCustomerRegistered)
	bus.Subscribe(events.KindSubscriptionChanged, o.onSubscriptionEvent)
	bus.Subscribe(events.KindPaymentRecorded, o.onSubscriptionEvent)
	bus.Subscribe(events.KindStatusChanged, o.onStatusChanged)
	bus.Subscribe(events.KindMessageSent, o.onMessageSent)
}

func (o *Orchestrator) onCustomerRegistered(ctx context.Context, evt events.Event) error {
	var payload events.CustomerRegisteredPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	return o.enqueue(ctx, evt, CRMSyncJobArgs{
		SyncKind: crm.KindContact,
		Customer: &payload.Customer,
	})
}

func (o *Orchestrator) onSubscriptionEvent(ctx context.Context, evt events.Event) error {
	var payload events.SubscriptionChangedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	return o.enqueue(ctx, evt, CRMSyncJobArgs{
		SyncKind:     crm.KindDeal,
		Subscription: &payload.State,
	})
}

func (o *Orchestrator) onStatusChanged(ctx context.Context, evt events.Event) error {
	var payload events.StatusChangedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	return o.enqueue(ctx, evt, CRMSyncJobArgs{
		SyncKind:   crm.KindActivity,
		CustomerID: payload.CustomerID,
		Change:     &payload.Change,
	})
}

func (o *Orchestrator) onMessageSent(ctx context.Context, evt events.Event) error {
	var payload events.MessageSentPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	return o.enqueue(ctx, evt, CRMSyncJobArgs{
		SyncKind:   crm.KindActivity,
		CustomerID: payload.CustomerID,
		Message:    &payload.Message,
	})
}

// enqueue hands one target to the queue. An enqueue failure is logged and
// absorbed so it cannot surface into the action that emitted the event; the
// reconciliation sweep picks up anything the queue missed.
func (o *Orchestrator) enqueue(ctx context.Context, evt events.Event, args CRMSyncJobArgs) error {
	if err := o.queue.Enqueue(ctx, args); err != nil {
		logging.Component("orchestrator").Error().Err(err).
			Str("event_id", evt.ID).
			Str("event_kind", string(evt.Kind)).
			Str("sync_kind", args.SyncKind).
			Msg("failed to enqueue sync")
		return err
	}
	logging.Component("orchestrator").Debug().
		Str("event_id", evt.ID).
		Str("sync_kind", args.SyncKind).
		Msg("sync enqueued")
	return nil
}
