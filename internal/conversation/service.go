// Package conversation owns the conversation and message lifecycle: status
// transitions, assignment, and the append-only message log. Every mutation
// is durably recorded before any sync or suggestion side effect runs; the
// service only emits events after the store write succeeds.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/internal/logging"
	"github.com/dealerdesk/pkg/models"
)

// allowedTransitions are the defined status edges. Edges out of resolved are
// handled exclusively by Reopen.
var allowedTransitions = map[models.ConversationStatus][]models.ConversationStatus{
	models.StatusOpen:    {models.StatusPending, models.StatusResolved},
	models.StatusPending: {models.StatusOpen, models.StatusResolved},
}

// Publisher decouples the service from the event bus
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// Service implements the conversation state machine
type Service struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

// NewService creates a conversation service. pub may be nil when no fan-out
// is wired (tests).
func NewService(store Store, pub Publisher) *Service {
	return &Service{store: store, pub: pub, now: time.Now}
}

// CreateParams are the inputs for a new conversation
type CreateParams struct {
	CustomerID string
	Priority   string
	Source     string
}

// Create starts a new open conversation for a customer
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Conversation, error) {
	if strings.TrimSpace(params.CustomerID) == "" {
		return nil, errs.Validation("customer_id", "required")
	}
	if params.Priority == "" {
		params.Priority = "normal"
	}

	now := s.now().UTC()
	convo := &models.Conversation{
		ID:         uuid.NewString(),
		CustomerID: params.CustomerID,
		Status:     models.StatusOpen,
		Priority:   params.Priority,
		Source:     params.Source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Insert(ctx, convo); err != nil {
		return nil, err
	}

	s.publish(ctx, events.New(events.KindConversationCreated, convo.ID,
		events.ConversationCreatedPayload{Conversation: *convo}))
	return convo, nil
}

// Assign sets or changes the staff member handling the conversation.
// Assignment is orthogonal to status except on resolved conversations.
func (s *Service) Assign(ctx context.Context, conversationID, staffID string) error {
	if strings.TrimSpace(staffID) == "" {
		return errs.Validation("staff_id", "required")
	}

	convo, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if convo.Status == models.StatusResolved {
		return errs.Conflict("cannot assign resolved conversation %s", conversationID)
	}

	convo.AssignedStaffID = &staffID
	convo.UpdatedAt = s.now().UTC()
	return s.store.Update(ctx, convo)
}

// Transition moves the conversation along a defined edge, recording the
// actor and timestamp. Disallowed edges fail with a conflict; an unassigned
// conversation cannot be resolved.
func (s *Service) Transition(ctx context.Context, conversationID string, to models.ConversationStatus, actor string) error {
	convo, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}

	if !edgeAllowed(convo.Status, to) {
		return errs.Conflict("invalid transition %s -> %s", convo.Status, to)
	}
	if to == models.StatusResolved && convo.AssignedStaffID == nil {
		return errs.Conflict("conversation %s is unassigned and cannot be resolved", conversationID)
	}

	return s.applyTransition(ctx, convo, to, actor)
}

// Reopen is the only way out of resolved and always lands in open
func (s *Service) Reopen(ctx context.Context, conversationID, actor string) error {
	convo, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if convo.Status != models.StatusResolved {
		return errs.Conflict("conversation %s is not resolved", conversationID)
	}
	return s.applyTransition(ctx, convo, models.StatusOpen, actor)
}

// AppendMessage records a message. The write completes before any side
// effect is attempted. A customer message on a resolved conversation
// automatically reopens it to pending.
func (s *Service) AppendMessage(ctx context.Context, conversationID string, sender models.Sender, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errs.Validation("body", "required")
	}
	switch sender {
	case models.SenderCustomer, models.SenderStaff, models.SenderAI:
	default:
		return nil, errs.Validation("sender", "must be customer, staff, or ai")
	}

	convo, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Body:           body,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if sender == models.SenderCustomer && convo.Status == models.StatusResolved {
		if err := s.applyTransition(ctx, convo, models.StatusPending, string(models.SenderCustomer)); err != nil {
			// The message is already durable; a failed reopen is logged for
			// reconciliation, not surfaced as a send failure.
			logging.Component("conversation").Error().Err(err).
				Str("conversation_id", conversationID).
				Msg("auto-reopen after customer message failed")
		}
	}

	s.publish(ctx, events.New(events.KindMessageSent, conversationID,
		events.MessageSentPayload{Message: *msg, CustomerID: convo.CustomerID}))
	return msg, nil
}

// Get returns one conversation
func (s *Service) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return s.store.Get(ctx, id)
}

// Messages returns the ordered message log
func (s *Service) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if _, err := s.store.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// MessagesAfter returns messages newer than the given instant, for polled
// updates
func (s *Service) MessagesAfter(ctx context.Context, conversationID string, after time.Time) ([]models.Message, error) {
	if _, err := s.store.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessagesAfter(ctx, conversationID, after)
}

// History returns the transition audit log
func (s *Service) History(ctx context.Context, conversationID string) ([]models.StatusChange, error) {
	if _, err := s.store.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListStatusChanges(ctx, conversationID)
}

func (s *Service) applyTransition(ctx context.Context, convo *models.Conversation, to models.ConversationStatus, actor string) error {
	from := convo.Status
	now := s.now().UTC()

	convo.Status = to
	convo.UpdatedAt = now
	if err := s.store.Update(ctx, convo); err != nil {
		return err
	}

	change := models.StatusChange{
		ConversationID: convo.ID,
		From:           from,
		To:             to,
		Actor:          actor,
		OccurredAt:     now,
	}
	if err := s.store.InsertStatusChange(ctx, change); err != nil {
		return err
	}

	s.publish(ctx, events.New(events.KindStatusChanged, convo.ID,
		events.StatusChangedPayload{Change: change, CustomerID: convo.CustomerID}))
	return nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.pub != nil {
		s.pub.Publish(ctx, evt)
	}
}

func edgeAllowed(from, to models.ConversationStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
