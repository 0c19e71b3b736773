package suggest

import (
	"context"
	"strings"
	"time"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/pkg/models"
)

// AssistanceStore persists AIAssistance records. They are never deleted;
// disposition actions are the only mutations.
type AssistanceStore interface {
	Insert(ctx context.Context, a *models.AIAssistance) error
	Get(ctx context.Context, id string) (*models.AIAssistance, error)
	Update(ctx context.Context, a *models.AIAssistance) error
}

// Dispositions applies staff decisions to suggestions. Operations are
// idempotent per assistance: repeating the same decision is a no-op, a
// different decision after a terminal one is a conflict.
type Dispositions struct {
	store AssistanceStore
	now   func() time.Time
}

// NewDispositions creates the disposition service
func NewDispositions(store AssistanceStore) *Dispositions {
	return &Dispositions{store: store, now: time.Now}
}

// Accept marks the suggestion accepted
func (d *Dispositions) Accept(ctx context.Context, assistanceID string) error {
	return d.apply(ctx, assistanceID, models.DispositionAccepted, nil)
}

// Reject marks the suggestion rejected
func (d *Dispositions) Reject(ctx context.Context, assistanceID string) error {
	return d.apply(ctx, assistanceID, models.DispositionRejected, nil)
}

// Edit stores staff-modified text and marks the suggestion edited
func (d *Dispositions) Edit(ctx context.Context, assistanceID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.Validation("text", "required")
	}
	return d.apply(ctx, assistanceID, models.DispositionEdited, &text)
}

// Rate records a 1-5 usefulness rating. Ratings are orthogonal to
// disposition and may be set or changed at any time.
func (d *Dispositions) Rate(ctx context.Context, assistanceID string, score int) error {
	if score < 1 || score > 5 {
		return errs.Validation("score", "must be between 1 and 5")
	}

	a, err := d.store.Get(ctx, assistanceID)
	if err != nil {
		return err
	}
	if a.Rating != nil && *a.Rating == score {
		return nil
	}

	a.Rating = &score
	a.UpdatedAt = d.now().UTC()
	return d.store.Update(ctx, a)
}

func (d *Dispositions) apply(ctx context.Context, assistanceID string, to models.Disposition, editedText *string) error {
	a, err := d.store.Get(ctx, assistanceID)
	if err != nil {
		return err
	}

	if a.Disposition == to {
		// Re-applying the same decision is a no-op, not an error. An edit
		// with different text does update the stored text.
		if to != models.DispositionEdited || editedTextEqual(a.EditedText, editedText) {
			return nil
		}
	} else if a.Disposition != models.DispositionPending {
		return errs.Conflict("assistance %s already %s", assistanceID, a.Disposition)
	}

	a.Disposition = to
	if editedText != nil {
		a.EditedText = editedText
	}
	a.UpdatedAt = d.now().UTC()
	return d.store.Update(ctx, a)
}

func editedTextEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
