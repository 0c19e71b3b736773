package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

// PostgresStore persists conversations in the conversations, messages, and
// conversation_status_log tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed conversation store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert implements Store
func (s *PostgresStore) Insert(ctx context.Context, convo *models.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, customer_id, assigned_staff_id, status, priority, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		convo.ID, convo.CustomerID, convo.AssignedStaffID, convo.Status,
		convo.Priority, convo.Source, convo.CreatedAt, convo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var convo models.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, customer_id, assigned_staff_id, status, priority, source, created_at, updated_at
		FROM conversations WHERE id = $1`,
		id,
	).Scan(&convo.ID, &convo.CustomerID, &convo.AssignedStaffID, &convo.Status,
		&convo.Priority, &convo.Source, &convo.CreatedAt, &convo.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errs.NotFound("conversation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &convo, nil
}

// Update implements Store
func (s *PostgresStore) Update(ctx context.Context, convo *models.Conversation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET assigned_staff_id = $2, status = $3, priority = $4, updated_at = $5
		WHERE id = $1`,
		convo.ID, convo.AssignedStaffID, convo.Status, convo.Priority, convo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("conversation", convo.ID)
	}
	return nil
}

// InsertMessage implements Store
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, body, assistance_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Body, msg.AssistanceID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages implements Store
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.listMessages(ctx, conversationID, time.Time{})
}

// ListMessagesAfter implements Store
func (s *PostgresStore) ListMessagesAfter(ctx context.Context, conversationID string, after time.Time) ([]models.Message, error) {
	return s.listMessages(ctx, conversationID, after)
}

func (s *PostgresStore) listMessages(ctx context.Context, conversationID string, after time.Time) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender, body, assistance_id, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC`,
		conversationID, after,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.AssistanceID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// InsertStatusChange implements Store
func (s *PostgresStore) InsertStatusChange(ctx context.Context, change models.StatusChange) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_status_log (conversation_id, from_status, to_status, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		change.ConversationID, change.From, change.To, change.Actor, change.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert status change: %w", err)
	}
	return nil
}

// ListStatusChanges implements Store
func (s *PostgresStore) ListStatusChanges(ctx context.Context, conversationID string) ([]models.StatusChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, from_status, to_status, actor, occurred_at
		FROM conversation_status_log
		WHERE conversation_id = $1
		ORDER BY occurred_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status changes: %w", err)
	}
	defer rows.Close()

	var changes []models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.ConversationID, &c.From, &c.To, &c.Actor, &c.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
