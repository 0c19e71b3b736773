package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

// Store persists conversations, their messages, and the transition audit log
type Store interface {
	Insert(ctx context.Context, convo *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
	Update(ctx context.Context, convo *models.Conversation) error

	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListMessagesAfter(ctx context.Context, conversationID string, after time.Time) ([]models.Message, error)

	InsertStatusChange(ctx context.Context, change models.StatusChange) error
	ListStatusChanges(ctx context.Context, conversationID string) ([]models.StatusChange, error)
}

// MemoryStore is an in-process Store used by tests and single-node runs
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	changes       map[string][]models.StatusChange
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
		changes:       make(map[string][]models.StatusChange),
	}
}

// Insert implements Store
func (s *MemoryStore) Insert(ctx context.Context, convo *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[convo.ID]; exists {
		return errs.Conflict("conversation %s already exists", convo.ID)
	}
	s.conversations[convo.ID] = *convo
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convo, ok := s.conversations[id]
	if !ok {
		return nil, errs.NotFound("conversation", id)
	}
	return &convo, nil
}

// Update implements Store
func (s *MemoryStore) Update(ctx context.Context, convo *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[convo.ID]; !ok {
		return errs.NotFound("conversation", convo.ID)
	}
	s.conversations[convo.ID] = *convo
	return nil
}

// InsertMessage implements Store
func (s *MemoryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return errs.NotFound("conversation", msg.ConversationID)
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

// ListMessages implements Store
func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := append([]models.Message{}, s.messages[conversationID]...)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

// ListMessagesAfter implements Store
func (s *MemoryStore) ListMessagesAfter(ctx context.Context, conversationID string, after time.Time) ([]models.Message, error) {
	all, err := s.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range all {
		if m.CreatedAt.After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}

// InsertStatusChange implements Store
func (s *MemoryStore) InsertStatusChange(ctx context.Context, change models.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[change.ConversationID] = append(s.changes[change.ConversationID], change)
	return nil
}

// ListStatusChanges implements Store
func (s *MemoryStore) ListStatusChanges(ctx context.Context, conversationID string) ([]models.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StatusChange{}, s.changes[conversationID]...), nil
}
