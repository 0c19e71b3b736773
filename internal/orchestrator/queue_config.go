package orchestrator

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunable parameters for the background job queue
type QueueConfig struct {
	// MaxWorkers is the number of concurrent workers per queue
	MaxWorkers int

	// MaxRetries is River's cap on redeliveries of a failed job. The CRM
	// adapter's own retry policy runs inside a single job attempt; River
	// retries cover longer outages.
	MaxRetries int

	// JobTimeout bounds a single job execution
	JobTimeout time.Duration

	// LedgerRetention is how long committed idempotency entries are kept
	// before the prune job removes them
	LedgerRetention time.Duration

	// PruneInterval is how often the ledger prune job runs
	PruneInterval time.Duration

	// ReconcileInterval is how often the sweep over failed syncs runs
	ReconcileInterval time.Duration

	// ReconcileWindow is how far back the sweep looks for failed attempts.
	// Anything older is considered abandoned.
	ReconcileWindow time.Duration
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:      10,
		MaxRetries:      10,
		JobTimeout:      2 * time.Minute,
		LedgerRetention: 30 * 24 * time.Hour,
		PruneInterval:   24 * time.Hour,

		ReconcileInterval: time.Hour,
		ReconcileWindow:   24 * time.Hour,
	}
}

// DevelopmentQueueConfig returns a configuration that fails fast
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 3
	config.MaxRetries = 3
	config.JobTimeout = 30 * time.Second
	config.ReconcileInterval = 5 * time.Minute
	return config
}

// RiverQueueConfig converts to River's queue configuration
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
