package suggest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

// MemoryAssistanceStore is an in-process AssistanceStore
type MemoryAssistanceStore struct {
	mu      sync.RWMutex
	records map[string]models.AIAssistance
}

// NewMemoryAssistanceStore creates an empty store
func NewMemoryAssistanceStore() *MemoryAssistanceStore {
	return &MemoryAssistanceStore{records: make(map[string]models.AIAssistance)}
}

// Insert implements AssistanceStore
func (s *MemoryAssistanceStore) Insert(ctx context.Context, a *models.AIAssistance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[a.ID]; exists {
		return errs.Conflict("assistance %s already exists", a.ID)
	}
	s.records[a.ID] = *a
	return nil
}

// Get implements AssistanceStore
func (s *MemoryAssistanceStore) Get(ctx context.Context, id string) (*models.AIAssistance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[id]
	if !ok {
		return nil, errs.NotFound("assistance", id)
	}
	return &a, nil
}

// Update implements AssistanceStore
func (s *MemoryAssistanceStore) Update(ctx context.Context, a *models.AIAssistance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[a.ID]; !ok {
		return errs.NotFound("assistance", a.ID)
	}
	s.records[a.ID] = *a
	return nil
}

// PostgresAssistanceStore persists assistance records in the ai_assistance
// table
type PostgresAssistanceStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAssistanceStore creates a Postgres-backed store
func NewPostgresAssistanceStore(pool *pgxpool.Pool) *PostgresAssistanceStore {
	return &PostgresAssistanceStore{pool: pool}
}

// Insert implements AssistanceStore
func (s *PostgresAssistanceStore) Insert(ctx context.Context, a *models.AIAssistance) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_assistance (id, message_id, suggested_text, edited_text, confidence, needs_clarification, disposition, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.MessageID, a.SuggestedText, a.EditedText, a.Confidence,
		a.NeedsClarification, a.Disposition, a.Rating, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assistance: %w", err)
	}
	return nil
}

// Get implements AssistanceStore
func (s *PostgresAssistanceStore) Get(ctx context.Context, id string) (*models.AIAssistance, error) {
	var a models.AIAssistance
	err := s.pool.QueryRow(ctx, `
		SELECT id, message_id, suggested_text, edited_text, confidence, needs_clarification, disposition, rating, created_at, updated_at
		FROM ai_assistance WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.MessageID, &a.SuggestedText, &a.EditedText, &a.Confidence,
		&a.NeedsClarification, &a.Disposition, &a.Rating, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("assistance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assistance: %w", err)
	}
	return &a, nil
}

// Update implements AssistanceStore
func (s *PostgresAssistanceStore) Update(ctx context.Context, a *models.AIAssistance) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ai_assistance
		SET edited_text = $2, disposition = $3, rating = $4, updated_at = $5
		WHERE id = $1`,
		a.ID, a.EditedText, a.Disposition, a.Rating, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update assistance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("assistance", a.ID)
	}
	return nil
}
