package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/dealerdesk/internal/errs"
)

type memoryEntry struct {
	reservedAt  time.Time
	committedAt time.Time
	committed   bool
	outcome     string
}

// MemoryLedger is an in-process Ledger with the same semantics as the
// Postgres implementation. It backs tests and single-node deployments.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLedger creates an in-memory ledger with the default reservation TTL
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]*memoryEntry),
		ttl:     DefaultReservationTTL,
		now:     time.Now,
	}
}

// Reserve implements Ledger
func (m *MemoryLedger) Reserve(ctx context.Context, key string) (Reservation, error) {
	if key == "" {
		return Reservation{}, errs.Validation("key", "empty idempotency key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok {
		m.entries[key] = &memoryEntry{reservedAt: now}
		return Reservation{Acquired: true}, nil
	}

	if entry.committed {
		// Failed outcomes are re-acquirable so a later sweep can retry.
		if entry.outcome == OutcomeFailed {
			entry.committed = false
			entry.outcome = ""
			entry.reservedAt = now
			return Reservation{Acquired: true}, nil
		}
		return Reservation{Committed: true, Outcome: entry.outcome}, nil
	}

	// Uncommitted reservation: stale ones are reclaimed, live ones mean
	// another caller is in flight.
	if now.Sub(entry.reservedAt) > m.ttl {
		entry.reservedAt = now
		return Reservation{Acquired: true}, nil
	}
	return Reservation{}, nil
}

// Commit implements Ledger
func (m *MemoryLedger) Commit(ctx context.Context, key string, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return errs.NotFound("ledger entry", key)
	}

	entry.committed = true
	entry.outcome = outcome
	entry.committedAt = m.now()
	return nil
}

// DeleteOlderThan implements Ledger
func (m *MemoryLedger) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-age)
	var pruned int64
	for key, entry := range m.entries {
		if entry.committed && entry.committedAt.Before(cutoff) {
			delete(m.entries, key)
			pruned++
		}
	}
	return pruned, nil
}
