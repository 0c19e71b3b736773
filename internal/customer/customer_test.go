package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/events"
)

type capturingBus struct {
	events []events.Event
}

func (b *capturingBus) Publish(ctx context.Context, evt events.Event) {
	b.events = append(b.events, evt)
}

func TestRegisterEmitsEvent(t *testing.T) {
	bus := &capturingBus{}
	svc := NewService(NewMemoryStore(), bus)

	c, err := svc.Register(context.Background(), "Dana@Example.com", "Dana", "Reyes", "555-0101", "walk-in")
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", c.Email, "email is normalized")

	require.Len(t, bus.events, 1)
	assert.Equal(t, events.KindCustomerRegistered, bus.events[0].Kind)
	assert.Equal(t, c.ID, bus.events[0].EntityID)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	bus := &capturingBus{}
	svc := NewService(NewMemoryStore(), bus)

	_, err := svc.Register(context.Background(), "dana@example.com", "Dana", "", "", "")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "dana@example.com", "Other", "", "", "")
	assert.True(t, errs.IsConflict(err))
	assert.Len(t, bus.events, 1, "no event for the rejected registration")
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	_, err := svc.Register(context.Background(), "not-an-email", "", "", "", "")
	assert.True(t, errs.IsValidation(err))
}
