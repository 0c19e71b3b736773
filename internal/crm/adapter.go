package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dealerdesk/internal/ledger"
	"github.com/dealerdesk/internal/logging"
	"github.com/dealerdesk/internal/retry"
	"github.com/dealerdesk/pkg/models"
)

// System is the journal identifier for this adapter
const System = "crm"

// Sync kinds recorded in the journal and in idempotency keys
const (
	KindContact  = "contact"
	KindDeal     = "deal"
	KindActivity = "activity"
)

// Adapter pushes entities to the CRM with idempotency and bounded retries.
// Every call appends exactly one journal entry regardless of outcome.
type Adapter struct {
	provider Provider
	ledger   ledger.Ledger
	attempts AttemptStore
	policy   retry.Policy
	now      func() time.Time
}

// NewAdapter creates a CRM sync adapter
func NewAdapter(provider Provider, idem ledger.Ledger, attempts AttemptStore) *Adapter {
	return &Adapter{
		provider: provider,
		ledger:   idem,
		attempts: attempts,
		policy:   retry.CRMPolicy(),
		now:      time.Now,
	}
}

// SyncContact upserts the customer as a CRM contact
func (a *Adapter) SyncContact(ctx context.Context, customer models.Customer) error {
	contact := ContactFromCustomer(customer)
	payload, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}
	return a.sync(ctx, customer.ID, KindContact, payload, func(ctx context.Context) error {
		return a.provider.UpsertContact(ctx, contact)
	})
}

// SyncDeal upserts the subscription projection as a CRM deal
func (a *Adapter) SyncDeal(ctx context.Context, state models.SubscriptionState) error {
	deal := DealFromSubscription(state)
	payload, err := json.Marshal(deal)
	if err != nil {
		return fmt.Errorf("failed to marshal deal: %w", err)
	}
	return a.sync(ctx, state.SubscriptionID, KindDeal, payload, func(ctx context.Context) error {
		return a.provider.UpsertDeal(ctx, deal)
	})
}

// SyncActivity logs a conversation transition on the contact timeline
func (a *Adapter) SyncActivity(ctx context.Context, customerID string, change models.StatusChange) error {
	activity := ActivityFromStatusChange(customerID, change)
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	return a.sync(ctx, change.ConversationID, KindActivity, payload, func(ctx context.Context) error {
		return a.provider.RecordActivity(ctx, activity)
	})
}

// SyncMessageActivity logs a sent message on the contact timeline. The
// payload hash keys idempotency, so each message syncs once.
func (a *Adapter) SyncMessageActivity(ctx context.Context, customerID string, msg models.Message) error {
	activity := ActivityFromMessage(customerID, msg)
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	return a.sync(ctx, msg.ConversationID, KindActivity, payload, func(ctx context.Context) error {
		return a.provider.RecordActivity(ctx, activity)
	})
}

// sync runs one idempotent, retried push. The returned error signals the job
// queue to redeliver; it is never surfaced to the action that triggered the
// sync.
func (a *Adapter) sync(ctx context.Context, entityID, kind string, payload []byte, op retry.Operation) error {
	logger := logging.Component("crm")
	key := ledger.Key(entityID, kind, payload)

	res, err := a.ledger.Reserve(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to reserve sync key: %w", err)
	}
	if !res.Acquired {
		// Either already synced or another worker holds the key. Both cases
		// skip: the payload hash guarantees the same data was (or is being)
		// pushed.
		a.journal(ctx, entityID, kind, key, models.SyncSkipped, 0, "")
		logger.Debug().
			Str("entity_id", entityID).
			Str("kind", kind).
			Str("prior_outcome", res.Outcome).
			Msg("sync skipped, key already handled")
		return nil
	}

	result := retry.Execute(ctx, a.policy, "crm_"+kind, op)

	outcome := models.SyncSuccess
	lastError := ""
	ledgerOutcome := ledger.OutcomeSuccess
	if !result.Success {
		outcome = models.SyncFailed
		lastError = result.LastError.Error()
		ledgerOutcome = ledger.OutcomeFailed
	}

	if err := a.ledger.Commit(ctx, key, ledgerOutcome); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("failed to commit sync outcome")
	}
	a.journal(ctx, entityID, kind, key, outcome, result.Attempts, lastError)

	if !result.Success {
		logger.Warn().
			Str("entity_id", entityID).
			Str("kind", kind).
			Int("attempts", result.Attempts).
			Err(result.LastError).
			Msg("CRM sync failed")
		return result.Err()
	}

	logger.Info().
		Str("entity_id", entityID).
		Str("kind", kind).
		Int("attempts", result.Attempts).
		Msg("CRM sync completed")
	return nil
}

func (a *Adapter) journal(ctx context.Context, entityID, kind, key string, outcome models.SyncOutcome, attempts int, lastError string) {
	entry := &models.SyncAttempt{
		System:         System,
		EntityID:       entityID,
		Kind:           kind,
		IdempotencyKey: key,
		Outcome:        outcome,
		Attempts:       attempts,
		LastError:      lastError,
		CreatedAt:      a.now().UTC(),
	}
	if err := a.attempts.Append(ctx, entry); err != nil {
		// The journal is observability, not correctness. Losing an entry must
		// not fail the sync.
		logging.Component("crm").Error().Err(err).
			Str("entity_id", entityID).
			Msg("failed to journal sync attempt")
	}
}
