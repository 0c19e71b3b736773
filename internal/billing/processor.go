package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/internal/ledger"
	"github.com/dealerdesk/internal/logging"
	"github.com/dealerdesk/internal/webhookutils"
	"github.com/dealerdesk/pkg/models"
)

// Decision is the processor's answer to a delivery. Accepted maps to 2xx
// (the provider stops redelivering), Rejected to non-2xx.
type Decision string

const (
	Accepted Decision = "accepted"
	Rejected Decision = "rejected"
)

// Publisher is the outbound event hook
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Processor handles billing webhook deliveries. Accepted is returned only
// after the state change is durably committed; anything less leaves the
// provider redelivering.
type Processor struct {
	secret string
	ledger ledger.Ledger
	states StateStore
	bus    Publisher
	now    func() time.Time
}

// NewProcessor creates a webhook processor
func NewProcessor(secret string, idem ledger.Ledger, states StateStore, bus Publisher) *Processor {
	return &Processor{
		secret: secret,
		ledger: idem,
		states: states,
		bus:    bus,
		now:    time.Now,
	}
}

// Handle processes one raw delivery. The error accompanies Rejected and
// carries the taxonomy type for the transport layer to map to a status code.
func (p *Processor) Handle(ctx context.Context, body []byte, headers map[string]string) (Decision, error) {
	logger := logging.Component("billing")

	signature, _ := webhookutils.GetHeaderCaseInsensitive(headers, SignatureHeader)
	if err := verifySignature(p.secret, body, signature); err != nil {
		logger.Warn().Err(err).Msg("webhook signature rejected")
		return Rejected, err
	}

	ev, err := parseEvent(body)
	if err != nil {
		logger.Warn().Err(err).Msg("webhook payload rejected")
		return Rejected, err
	}

	res, err := p.ledger.Reserve(ctx, ev.ID)
	if err != nil {
		return Rejected, fmt.Errorf("failed to reserve event %s: %w", ev.ID, err)
	}
	if !res.Acquired {
		// Duplicate delivery. Already durably handled (or being handled by a
		// concurrent delivery of the same event); acknowledge without
		// reapplying.
		logger.Debug().
			Str("event_id", ev.ID).
			Str("prior_outcome", res.Outcome).
			Msg("duplicate webhook delivery acknowledged")
		return Accepted, nil
	}

	status, known := statusFor(ev)
	if !known {
		// Unknown event types are journaled and acknowledged so the provider
		// does not redeliver them forever.
		logger.Info().
			Str("event_id", ev.ID).
			Str("type", ev.Type).
			Msg("unknown billing event type skipped")
		if err := p.ledger.Commit(ctx, ev.ID, ledger.OutcomeSkipped); err != nil {
			return Rejected, fmt.Errorf("failed to commit event %s: %w", ev.ID, err)
		}
		return Accepted, nil
	}

	applied, err := p.apply(ctx, ev, status)
	if err != nil {
		logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to apply billing event")
		if cerr := p.ledger.Commit(ctx, ev.ID, ledger.OutcomeFailed); cerr != nil {
			logger.Error().Err(cerr).Str("event_id", ev.ID).Msg("failed to commit failed outcome")
		}
		return Rejected, err
	}

	outcome := ledger.OutcomeSuccess
	if !applied {
		outcome = ledger.OutcomeSkipped
	}
	if err := p.ledger.Commit(ctx, ev.ID, outcome); err != nil {
		// Not committed means a redelivery will reprocess; the conditional
		// write makes that harmless.
		return Rejected, fmt.Errorf("failed to commit event %s: %w", ev.ID, err)
	}

	logger.Info().
		Str("event_id", ev.ID).
		Str("type", ev.Type).
		Bool("applied", applied).
		Msg("billing event processed")

	if applied {
		p.emit(ctx, ev)
	}
	return Accepted, nil
}

// apply performs the conditional projection update. Returns false when a
// newer event has already been applied (out-of-order redelivery).
func (p *Processor) apply(ctx context.Context, ev Event, status models.SubscriptionStatus) (bool, error) {
	state := models.SubscriptionState{
		SubscriptionID: ev.Data.SubscriptionID,
		CustomerID:     ev.Data.CustomerID,
		Status:         status,
		Tier:           ev.Data.Tier,
		Renewal:        ev.Data.Renewal,
		LastEventID:    ev.ID,
		LastEventAt:    ev.OccurredAt,
		UpdatedAt:      p.now().UTC(),
	}

	// Older events must not clobber fields the newer event set. Preserve
	// tier and customer from the stored row when the event omits them.
	if current, err := p.states.Get(ctx, ev.Data.SubscriptionID); err == nil {
		if state.Tier == "" {
			state.Tier = current.Tier
		}
		if state.CustomerID == "" {
			state.CustomerID = current.CustomerID
		}
	} else if !errs.IsNotFound(err) {
		return false, err
	}

	return p.states.ApplyIfNewer(ctx, state)
}

// emit publishes the domain event after the durable commit. Emission cannot
// roll back the applied state; the bus absorbs handler failures.
func (p *Processor) emit(ctx context.Context, ev Event) {
	state, err := p.states.Get(ctx, ev.Data.SubscriptionID)
	if err != nil {
		logging.Component("billing").Error().Err(err).
			Str("subscription_id", ev.Data.SubscriptionID).
			Msg("failed to load state for event emission")
		return
	}

	kind := events.KindSubscriptionChanged
	if ev.isPayment() {
		kind = events.KindPaymentRecorded
	}
	p.bus.Publish(ctx, events.New(kind, state.SubscriptionID, events.SubscriptionChangedPayload{
		State:         *state,
		ProviderEvent: ev.Type,
		EventID:       ev.ID,
	}))
}
