// Package ledger implements the idempotency ledger that dedupes inbound
// webhook events and outbound sync attempts. Reserve is atomic under
// concurrent delivery: exactly one caller acquires a key; later callers
// observe the previously committed outcome without reapplying side effects.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Outcomes recorded against a committed key
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// DefaultReservationTTL bounds how long an uncommitted reservation blocks
// other callers. A process that dies mid-flight leaves its reservation to
// expire, so a restart retries instead of skipping.
const DefaultReservationTTL = 10 * time.Minute

// Reservation is the result of a Reserve call
type Reservation struct {
	// Acquired is true when the caller owns the key and must perform the
	// work, then Commit.
	Acquired bool
	// Committed is true when a previous owner committed a terminal outcome.
	Committed bool
	// Outcome is the previously committed outcome when Committed is true.
	Outcome string
}

// Ledger is the idempotency store. Keys are provider event ids for inbound
// webhooks and Key(entity, kind, payload) for outbound syncs.
type Ledger interface {
	// Reserve atomically claims key. If the key was committed before, the
	// reservation reports the prior outcome instead of acquiring. Committed
	// failures are re-acquirable: a retry appends a fresh attempt.
	Reserve(ctx context.Context, key string) (Reservation, error)

	// Commit records the terminal outcome for a reserved key
	Commit(ctx context.Context, key string, outcome string) error

	// DeleteOlderThan prunes entries committed before the retention window.
	// Replays outside the window degrade to normal reprocessing because the
	// downstream mutations are themselves idempotent.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Key builds the outbound-sync idempotency key from the entity id, the sync
// kind, and a content hash of the payload, so a retried sync of unchanged
// data collapses to a no-op.
func Key(entityID, kind string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%s", entityID, kind, hex.EncodeToString(sum[:]))
}
