package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), nil)
}

func createAssigned(t *testing.T, svc *Service) *models.Conversation {
	t.Helper()
	ctx := context.Background()
	convo, err := svc.Create(ctx, CreateParams{CustomerID: "cust_1", Source: "web"})
	require.NoError(t, err)
	require.NoError(t, svc.Assign(ctx, convo.ID, "staff_1"))
	return convo
}

func TestCreateStartsOpen(t *testing.T) {
	svc := newTestService(t)
	convo, err := svc.Create(context.Background(), CreateParams{CustomerID: "cust_1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusOpen, convo.Status)
	assert.Equal(t, "normal", convo.Priority)
	assert.Nil(t, convo.AssignedStaffID)
}

func TestCreateRequiresCustomer(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), CreateParams{})
	assert.True(t, errs.IsValidation(err))
}

func TestTransitionEdges(t *testing.T) {
	cases := []struct {
		name    string
		path    []models.ConversationStatus
		wantErr bool
	}{
		{"open to pending", []models.ConversationStatus{models.StatusPending}, false},
		{"open to resolved", []models.ConversationStatus{models.StatusResolved}, false},
		{"pending back to open", []models.ConversationStatus{models.StatusPending, models.StatusOpen}, false},
		{"pending to resolved", []models.ConversationStatus{models.StatusPending, models.StatusResolved}, false},
		{"resolved is terminal for transition", []models.ConversationStatus{models.StatusResolved, models.StatusOpen}, true},
		{"open to open", []models.ConversationStatus{models.StatusOpen}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t)
			convo := createAssigned(t, svc)
			ctx := context.Background()

			var err error
			for _, to := range tc.path {
				err = svc.Transition(ctx, convo.ID, to, "staff_1")
				if err != nil {
					break
				}
			}
			if tc.wantErr {
				assert.True(t, errs.IsConflict(err), "expected conflict, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnassignedConversationCannotResolve(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo, err := svc.Create(ctx, CreateParams{CustomerID: "cust_1"})
	require.NoError(t, err)

	err = svc.Transition(ctx, convo.ID, models.StatusResolved, "staff_1")
	assert.True(t, errs.IsConflict(err))
}

func TestAssignResolvedConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo := createAssigned(t, svc)
	require.NoError(t, svc.Transition(ctx, convo.ID, models.StatusResolved, "staff_1"))

	err := svc.Assign(ctx, convo.ID, "staff_2")
	assert.True(t, errs.IsConflict(err))
}

func TestReopenLandsInOpen(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo := createAssigned(t, svc)
	require.NoError(t, svc.Transition(ctx, convo.ID, models.StatusResolved, "staff_1"))

	require.NoError(t, svc.Reopen(ctx, convo.ID, "staff_1"))

	got, err := svc.Get(ctx, convo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestReopenRequiresResolved(t *testing.T) {
	svc := newTestService(t)
	convo := createAssigned(t, svc)

	err := svc.Reopen(context.Background(), convo.ID, "staff_1")
	assert.True(t, errs.IsConflict(err))
}

func TestCustomerMessageReopensResolvedToPending(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo := createAssigned(t, svc)
	require.NoError(t, svc.Transition(ctx, convo.ID, models.StatusResolved, "staff_1"))

	msg, err := svc.AppendMessage(ctx, convo.ID, models.SenderCustomer, "is the car still available?")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	got, err := svc.Get(ctx, convo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	history, err := svc.History(ctx, convo.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, models.StatusResolved, last.From)
	assert.Equal(t, models.StatusPending, last.To)
	assert.Equal(t, "customer", last.Actor)
}

func TestStaffMessageDoesNotReopen(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo := createAssigned(t, svc)
	require.NoError(t, svc.Transition(ctx, convo.ID, models.StatusResolved, "staff_1"))

	_, err := svc.AppendMessage(ctx, convo.ID, models.SenderStaff, "closing note")
	require.NoError(t, err)

	got, err := svc.Get(ctx, convo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
}

func TestAppendMessageMissingConversation(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AppendMessage(context.Background(), "missing", models.SenderCustomer, "hello")
	assert.True(t, errs.IsNotFound(err))
}

func TestNoPathToResolvedWithoutOpenOrPending(t *testing.T) {
	// Exhaustive walk over the edge table: every edge into resolved starts
	// from open or pending.
	for from, tos := range allowedTransitions {
		for _, to := range tos {
			if to == models.StatusResolved {
				assert.Contains(t, []models.ConversationStatus{models.StatusOpen, models.StatusPending}, from)
			}
		}
	}
	assert.Empty(t, allowedTransitions[models.StatusResolved])
}

func TestTransitionsAreAudited(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo := createAssigned(t, svc)

	require.NoError(t, svc.Transition(ctx, convo.ID, models.StatusPending, "staff_1"))
	require.NoError(t, svc.Transition(ctx, convo.ID, models.StatusResolved, "staff_1"))

	history, err := svc.History(ctx, convo.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "staff_1", history[0].Actor)
	assert.False(t, history[0].OccurredAt.IsZero())
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	convo := createAssigned(t, svc)

	_, err := svc.AppendMessage(ctx, convo.ID, models.SenderCustomer, "first")
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, convo.ID, models.SenderStaff, "second")
	require.NoError(t, err)

	msgs, err := svc.Messages(ctx, convo.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.False(t, msgs[1].CreatedAt.Before(msgs[0].CreatedAt))
}
