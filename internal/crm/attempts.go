package crm

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dealerdesk/pkg/models"
)

// AttemptStore is the append-only journal of outbound syncs. Entries are
// never updated or deleted; a retry appends a new entry.
type AttemptStore interface {
	Append(ctx context.Context, attempt *models.SyncAttempt) error
	ListByEntity(ctx context.Context, entityID string) ([]models.SyncAttempt, error)

	// LatestFailed returns, for each (entity, kind) with activity after
	// since, its newest attempt when that attempt is a terminal failure.
	// The reconciliation sweep feeds on this.
	LatestFailed(ctx context.Context, since time.Time) ([]models.SyncAttempt, error)
}

// MemoryAttemptStore is an in-process AttemptStore
type MemoryAttemptStore struct {
	mu       sync.RWMutex
	attempts []models.SyncAttempt
	nextID   int64
}

// NewMemoryAttemptStore creates an empty journal
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{nextID: 1}
}

// Append implements AttemptStore
func (s *MemoryAttemptStore) Append(ctx context.Context, attempt *models.SyncAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt.ID = s.nextID
	s.nextID++
	s.attempts = append(s.attempts, *attempt)
	return nil
}

// ListByEntity implements AttemptStore
func (s *MemoryAttemptStore) ListByEntity(ctx context.Context, entityID string) ([]models.SyncAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SyncAttempt
	for _, a := range s.attempts {
		if a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

// LatestFailed implements AttemptStore
func (s *MemoryAttemptStore) LatestFailed(ctx context.Context, since time.Time) ([]models.SyncAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]models.SyncAttempt)
	for _, a := range s.attempts {
		latest[a.EntityID+"/"+a.Kind] = a
	}

	var out []models.SyncAttempt
	for _, a := range latest {
		if a.Outcome == models.SyncFailed && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

// PostgresAttemptStore persists the journal in the sync_attempts table. It
// runs on database/sql so the append-only journal keeps its own connection
// pool apart from the pgx pool driving the job queue.
type PostgresAttemptStore struct {
	db *sql.DB
}

// NewPostgresAttemptStore creates a Postgres-backed journal
func NewPostgresAttemptStore(db *sql.DB) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db}
}

// Append implements AttemptStore
func (s *PostgresAttemptStore) Append(ctx context.Context, attempt *models.SyncAttempt) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sync_attempts (system, entity_id, kind, idempotency_key, outcome, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		attempt.System, attempt.EntityID, attempt.Kind, attempt.IdempotencyKey,
		attempt.Outcome, attempt.Attempts, attempt.LastError, attempt.CreatedAt,
	).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to append sync attempt: %w", err)
	}
	return nil
}

// ListByEntity implements AttemptStore
func (s *PostgresAttemptStore) ListByEntity(ctx context.Context, entityID string) ([]models.SyncAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system, entity_id, kind, idempotency_key, outcome, attempts, last_error, created_at
		FROM sync_attempts WHERE entity_id = $1 ORDER BY id`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync attempts: %w", err)
	}
	defer rows.Close()

	var out []models.SyncAttempt
	for rows.Next() {
		var a models.SyncAttempt
		if err := rows.Scan(&a.ID, &a.System, &a.EntityID, &a.Kind, &a.IdempotencyKey,
			&a.Outcome, &a.Attempts, &a.LastError, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestFailed implements AttemptStore
func (s *PostgresAttemptStore) LatestFailed(ctx context.Context, since time.Time) ([]models.SyncAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, system, entity_id, kind, idempotency_key, outcome, attempts, last_error, created_at
		FROM (
			SELECT DISTINCT ON (entity_id, kind) *
			FROM sync_attempts
			WHERE created_at >= $1
			ORDER BY entity_id, kind, id DESC
		) latest
		WHERE outcome = $2`,
		since, models.SyncFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed sync attempts: %w", err)
	}
	defer rows.Close()

	var out []models.SyncAttempt
	for rows.Next() {
		var a models.SyncAttempt
		if err := rows.Scan(&a.ID, &a.System, &a.EntityID, &a.Kind, &a.IdempotencyKey,
			&a.Outcome, &a.Attempts, &a.LastError, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
