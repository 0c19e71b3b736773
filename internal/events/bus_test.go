package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToKindSubscribers(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(KindMessageSent, func(ctx context.Context, evt Event) error {
		got = append(got, evt)
		return nil
	})

	bus.Publish(context.Background(), New(KindMessageSent, "m1", nil))
	bus.Publish(context.Background(), New(KindConversationCreated, "c1", nil))

	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].EntityID)
}

func TestPublishSurvivesFailingAndPanickingHandlers(t *testing.T) {
	bus := NewBus()
	var delivered int
	bus.Subscribe(KindMessageSent, func(ctx context.Context, evt Event) error {
		return errors.New("handler failed")
	})
	bus.Subscribe(KindMessageSent, func(ctx context.Context, evt Event) error {
		panic("handler panicked")
	})
	bus.Subscribe(KindMessageSent, func(ctx context.Context, evt Event) error {
		delivered++
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), New(KindMessageSent, "m1", nil))
	})
	assert.Equal(t, 1, delivered, "later handlers still run")
}

func TestSubscribeAllSeesEveryKind(t *testing.T) {
	bus := NewBus()
	var kinds []Kind
	bus.SubscribeAll(func(ctx context.Context, evt Event) error {
		kinds = append(kinds, evt.Kind)
		return nil
	})

	bus.Publish(context.Background(), New(KindCustomerRegistered, "c1", nil))
	bus.Publish(context.Background(), New(KindPaymentRecorded, "s1", nil))

	assert.Equal(t, []Kind{KindCustomerRegistered, KindPaymentRecorded}, kinds)
}
