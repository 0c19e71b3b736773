package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

// StateStore persists the SubscriptionState projection. ApplyIfNewer is the
// only mutation: a single atomic conditional write that keeps the projection
// at the newest event even under out-of-order delivery.
type StateStore interface {
	Get(ctx context.Context, subscriptionID string) (*models.SubscriptionState, error)

	// ApplyIfNewer writes state only if it carries a newer event than the
	// stored row (timestamp order, event id breaking ties). Returns whether
	// the write happened.
	ApplyIfNewer(ctx context.Context, state models.SubscriptionState) (bool, error)
}

// newerThan reports whether candidate's event should replace current's
func newerThan(candidate, current models.SubscriptionState) bool {
	if candidate.LastEventAt.After(current.LastEventAt) {
		return true
	}
	if candidate.LastEventAt.Equal(current.LastEventAt) {
		return candidate.LastEventID > current.LastEventID
	}
	return false
}

// MemoryStateStore is an in-process StateStore
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]models.SubscriptionState
}

// NewMemoryStateStore creates an empty store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]models.SubscriptionState)}
}

// Get implements StateStore
func (s *MemoryStateStore) Get(ctx context.Context, subscriptionID string) (*models.SubscriptionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[subscriptionID]
	if !ok {
		return nil, errs.NotFound("subscription", subscriptionID)
	}
	return &state, nil
}

// ApplyIfNewer implements StateStore
func (s *MemoryStateStore) ApplyIfNewer(ctx context.Context, state models.SubscriptionState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.states[state.SubscriptionID]
	if ok && !newerThan(state, current) {
		return false, nil
	}
	s.states[state.SubscriptionID] = state
	return true, nil
}

// PostgresStateStore persists the projection in the subscription_states table
type PostgresStateStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStateStore creates a Postgres-backed store
func NewPostgresStateStore(pool *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{pool: pool}
}

// Get implements StateStore
func (s *PostgresStateStore) Get(ctx context.Context, subscriptionID string) (*models.SubscriptionState, error) {
	var st models.SubscriptionState
	err := s.pool.QueryRow(ctx, `
		SELECT subscription_id, customer_id, status, tier, renewal, last_event_id, last_event_at, updated_at
		FROM subscription_states WHERE subscription_id = $1`,
		subscriptionID,
	).Scan(&st.SubscriptionID, &st.CustomerID, &st.Status, &st.Tier, &st.Renewal,
		&st.LastEventID, &st.LastEventAt, &st.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("subscription", subscriptionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription state: %w", err)
	}
	return &st, nil
}

// ApplyIfNewer implements StateStore. The WHERE clause on the upsert makes
// the timestamp comparison atomic; concurrent handlers never need a
// transaction.
func (s *PostgresStateStore) ApplyIfNewer(ctx context.Context, state models.SubscriptionState) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO subscription_states (subscription_id, customer_id, status, tier, renewal, last_event_id, last_event_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subscription_id) DO UPDATE
		SET customer_id = EXCLUDED.customer_id,
		    status = EXCLUDED.status,
		    tier = EXCLUDED.tier,
		    renewal = EXCLUDED.renewal,
		    last_event_id = EXCLUDED.last_event_id,
		    last_event_at = EXCLUDED.last_event_at,
		    updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.last_event_at > subscription_states.last_event_at
		   OR (EXCLUDED.last_event_at = subscription_states.last_event_at
		       AND EXCLUDED.last_event_id > subscription_states.last_event_id)`,
		state.SubscriptionID, state.CustomerID, state.Status, state.Tier, state.Renewal,
		state.LastEventID, state.LastEventAt, state.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply subscription state: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
