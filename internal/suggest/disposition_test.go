package suggest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

func seedAssistance(t *testing.T, store AssistanceStore) string {
	t.Helper()
	now := time.Now().UTC()
	a := &models.AIAssistance{
		ID:            "as1",
		MessageID:     "m1",
		SuggestedText: "We have two in stock.",
		Disposition:   models.DispositionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.Insert(context.Background(), a))
	return a.ID
}

func TestAcceptIsIdempotent(t *testing.T) {
	store := NewMemoryAssistanceStore()
	id := seedAssistance(t, store)
	d := NewDispositions(store)

	require.NoError(t, d.Accept(context.Background(), id))
	require.NoError(t, d.Accept(context.Background(), id))

	a, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.DispositionAccepted, a.Disposition)
}

func TestConflictingDecisionAfterTerminal(t *testing.T) {
	store := NewMemoryAssistanceStore()
	id := seedAssistance(t, store)
	d := NewDispositions(store)

	require.NoError(t, d.Reject(context.Background(), id))

	err := d.Accept(context.Background(), id)
	assert.True(t, errs.IsConflict(err))

	err = d.Edit(context.Background(), id, "actually three in stock")
	assert.True(t, errs.IsConflict(err))
}

func TestEditStoresText(t *testing.T) {
	store := NewMemoryAssistanceStore()
	id := seedAssistance(t, store)
	d := NewDispositions(store)

	require.NoError(t, d.Edit(context.Background(), id, "We have two in stock, both blue."))

	a, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.DispositionEdited, a.Disposition)
	require.NotNil(t, a.EditedText)
	assert.Equal(t, "We have two in stock, both blue.", *a.EditedText)

	// A second edit revises the stored text rather than conflicting.
	require.NoError(t, d.Edit(context.Background(), id, "Two in stock."))
	a, err = store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Two in stock.", *a.EditedText)
}

func TestEditRequiresText(t *testing.T) {
	store := NewMemoryAssistanceStore()
	id := seedAssistance(t, store)
	d := NewDispositions(store)

	err := d.Edit(context.Background(), id, "   ")
	assert.True(t, errs.IsValidation(err))
}

func TestRateBoundsAndOverwrite(t *testing.T) {
	store := NewMemoryAssistanceStore()
	id := seedAssistance(t, store)
	d := NewDispositions(store)

	assert.True(t, errs.IsValidation(d.Rate(context.Background(), id, 0)))
	assert.True(t, errs.IsValidation(d.Rate(context.Background(), id, 6)))

	require.NoError(t, d.Rate(context.Background(), id, 4))
	require.NoError(t, d.Rate(context.Background(), id, 2))

	a, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a.Rating)
	assert.Equal(t, 2, *a.Rating)
}

func TestRateAllowedAfterTerminalDisposition(t *testing.T) {
	store := NewMemoryAssistanceStore()
	id := seedAssistance(t, store)
	d := NewDispositions(store)

	require.NoError(t, d.Accept(context.Background(), id))
	require.NoError(t, d.Rate(context.Background(), id, 5))
}

func TestDispositionUnknownAssistance(t *testing.T) {
	d := NewDispositions(NewMemoryAssistanceStore())
	err := d.Accept(context.Background(), "missing")
	assert.True(t, errs.IsNotFound(err))
}
