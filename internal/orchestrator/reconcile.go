package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/dealerdesk/internal/billing"
	"github.com/dealerdesk/internal/crm"
	"github.com/dealerdesk/internal/customer"
	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/logging"
)

// ReconcileJobArgs triggers a sweep over failed terminal syncs
type ReconcileJobArgs struct{}

// Kind returns the job kind for River
func (ReconcileJobArgs) Kind() string {
	return "sync_reconcile"
}

// ReconcileWorker re-enqueues entities whose latest sync attempt failed. It
// reloads the current entity state so the sweep pushes fresh data, not the
// payload that failed.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileJobArgs]
	attempts  crm.AttemptStore
	customers customer.Store
	states    billing.StateStore
	queue     Enqueuer
	config    *QueueConfig
}

// Work implements river.Worker
func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileJobArgs]) error {
	return w.sweep(ctx, job.CreatedAt.Add(-w.config.ReconcileWindow))
}

func (w *ReconcileWorker) sweep(ctx context.Context, since time.Time) error {
	logger := logging.Component("orchestrator")

	failed, err := w.attempts.LatestFailed(ctx, since)
	if err != nil {
		return fmt.Errorf("reconcile sweep failed to list attempts: %w", err)
	}

	var requeued, skipped int
	for _, attempt := range failed {
		args, err := w.rebuild(ctx, attempt.EntityID, attempt.Kind)
		if err != nil {
			// The entity may be gone, or the kind cannot be replayed from
			// current state. Skip; the journal still records the failure.
			logger.Warn().Err(err).
				Str("entity_id", attempt.EntityID).
				Str("kind", attempt.Kind).
				Msg("reconcile skipped attempt")
			skipped++
			continue
		}
		if err := w.queue.Enqueue(ctx, args); err != nil {
			return fmt.Errorf("reconcile failed to enqueue %s/%s: %w", attempt.EntityID, attempt.Kind, err)
		}
		requeued++
	}

	logger.Info().
		Int("failed", len(failed)).
		Int("requeued", requeued).
		Int("skipped", skipped).
		Msg("reconciliation sweep completed")
	return nil
}

func (w *ReconcileWorker) rebuild(ctx context.Context, entityID, kind string) (CRMSyncJobArgs, error) {
	switch kind {
	case crm.KindContact:
		cust, err := w.customers.Get(ctx, entityID)
		if err != nil {
			return CRMSyncJobArgs{}, err
		}
		return CRMSyncJobArgs{SyncKind: crm.KindContact, Customer: cust}, nil
	case crm.KindDeal:
		state, err := w.states.Get(ctx, entityID)
		if err != nil {
			return CRMSyncJobArgs{}, err
		}
		return CRMSyncJobArgs{SyncKind: crm.KindDeal, Subscription: state}, nil
	case crm.KindActivity:
		// Activity entries are point-in-time; there is no current state to
		// replay them from.
		return CRMSyncJobArgs{}, errs.Conflict("activity syncs are not replayable")
	default:
		return CRMSyncJobArgs{}, errs.Validation("kind", fmt.Sprintf("unknown sync kind %q", kind))
	}
}
