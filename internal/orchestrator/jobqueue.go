// Package orchestrator fans domain events out to their side effects. The
// fan-out targets are independent: a failing CRM push never touches the
// primary write that produced the event, and one target's failure does not
// stop the others.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/dealerdesk/internal/billing"
	"github.com/dealerdesk/internal/crm"
	"github.com/dealerdesk/internal/customer"
	"github.com/dealerdesk/internal/ledger"
	"github.com/dealerdesk/internal/logging"
	"github.com/dealerdesk/pkg/models"
)

// CRMSyncJobArgs carries one outbound CRM sync. Exactly one of the entity
// fields is set, selected by SyncKind; activity syncs carry either a status
// change or a message.
type CRMSyncJobArgs struct {
	SyncKind     string                    `json:"sync_kind"`
	Customer     *models.Customer          `json:"customer,omitempty"`
	Subscription *models.SubscriptionState `json:"subscription,omitempty"`
	CustomerID   string                    `json:"customer_id,omitempty"`
	Change       *models.StatusChange      `json:"change,omitempty"`
	Message      *models.Message           `json:"message,omitempty"`
}

// Kind returns the job kind for River
func (CRMSyncJobArgs) Kind() string {
	return "crm_sync"
}

// CRMSyncWorker executes queued CRM syncs
type CRMSyncWorker struct {
	river.WorkerDefaults[CRMSyncJobArgs]
	adapter *crm.Adapter
}

// Work implements river.Worker. Returning an error lets River redeliver; the
// adapter's idempotency key makes redelivery safe.
func (w *CRMSyncWorker) Work(ctx context.Context, job *river.Job[CRMSyncJobArgs]) error {
	args := job.Args
	switch args.SyncKind {
	case crm.KindContact:
		if args.Customer == nil {
			return fmt.Errorf("crm_sync job %d: missing customer", job.ID)
		}
		return w.adapter.SyncContact(ctx, *args.Customer)
	case crm.KindDeal:
		if args.Subscription == nil {
			return fmt.Errorf("crm_sync job %d: missing subscription", job.ID)
		}
		return w.adapter.SyncDeal(ctx, *args.Subscription)
	case crm.KindActivity:
		switch {
		case args.Change != nil:
			return w.adapter.SyncActivity(ctx, args.CustomerID, *args.Change)
		case args.Message != nil:
			return w.adapter.SyncMessageActivity(ctx, args.CustomerID, *args.Message)
		default:
			return fmt.Errorf("crm_sync job %d: missing status change or message", job.ID)
		}
	default:
		return fmt.Errorf("crm_sync job %d: unknown sync kind %q", job.ID, args.SyncKind)
	}
}

// LedgerPruneJobArgs triggers retention cleanup of committed idempotency
// entries
type LedgerPruneJobArgs struct{}

// Kind returns the job kind for River
func (LedgerPruneJobArgs) Kind() string {
	return "ledger_prune"
}

// LedgerPruneWorker removes idempotency entries past retention. Replays of
// events that old degrade to normal reprocessing, which the conditional
// writes tolerate.
type LedgerPruneWorker struct {
	river.WorkerDefaults[LedgerPruneJobArgs]
	ledger    ledger.Ledger
	retention *QueueConfig
}

// Work implements river.Worker
func (w *LedgerPruneWorker) Work(ctx context.Context, job *river.Job[LedgerPruneJobArgs]) error {
	pruned, err := w.ledger.DeleteOlderThan(ctx, w.retention.LedgerRetention)
	if err != nil {
		return fmt.Errorf("ledger prune failed: %w", err)
	}
	logging.Component("orchestrator").Info().
		Int64("pruned", pruned).
		Dur("retention", w.retention.LedgerRetention).
		Msg("idempotency ledger pruned")
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	config *QueueConfig
}

// JobQueueDeps carries the stores the background workers need beyond the CRM
// adapter itself
type JobQueueDeps struct {
	Adapter   *crm.Adapter
	Ledger    ledger.Ledger
	Attempts  crm.AttemptStore
	Customers customer.Store
	States    billing.StateStore
}

// NewJobQueue creates the queue with its workers registered
func NewJobQueue(pool *pgxpool.Pool, deps JobQueueDeps, config *QueueConfig) (*JobQueue, error) {
	jq := &JobQueue{config: config}

	workers := river.NewWorkers()
	river.AddWorker(workers, &CRMSyncWorker{adapter: deps.Adapter})
	river.AddWorker(workers, &LedgerPruneWorker{ledger: deps.Ledger, retention: config})
	river.AddWorker(workers, &ReconcileWorker{
		attempts:  deps.Attempts,
		customers: deps.Customers,
		states:    deps.States,
		queue:     jq,
		config:    config,
	})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(config.PruneInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return LedgerPruneJobArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: false},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(config.ReconcileInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return ReconcileJobArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: false},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	jq.client = client
	return jq, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// Enqueue implements Enqueuer on the durable queue
func (jq *JobQueue) Enqueue(ctx context.Context, args CRMSyncJobArgs) error {
	_, err := jq.client.Insert(ctx, args, &river.InsertOpts{
		MaxAttempts: jq.config.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to queue %s sync: %w", args.SyncKind, err)
	}
	return nil
}
