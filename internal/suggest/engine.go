// Package suggest implements the AI suggestion engine. The prompt is built
// exclusively from the conversation's own message history plus structured
// facts supplied by the caller; the engine has no other data source, and a
// grounding check on its output enforces that structurally.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/time/rate"

	"github.com/dealerdesk/internal/logging"
	"github.com/dealerdesk/internal/retry"
	"github.com/dealerdesk/pkg/models"
)

// ChatModel is the provider boundary. Rate limits, outages, and malformed
// output all reduce to "no suggestion" for the caller.
type ChatModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Fact is a structured, caller-supplied piece of context, e.g. one line of
// a vehicle inventory snapshot
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Context is everything the engine is allowed to see
type Context struct {
	Messages []models.Message `json:"messages"`
	Facts    []Fact           `json:"facts,omitempty"`
}

// Suggestion is the engine's result. Degraded means the provider failed and
// no draft is available; it is a soft failure that never blocks message
// sending.
type Suggestion struct {
	Text               string   `json:"text"`
	Confidence         *float64 `json:"confidence,omitempty"`
	NeedsClarification bool     `json:"needs_clarification"`
	Degraded           bool     `json:"degraded"`
	Flags              []string `json:"flags,omitempty"`
}

// clarificationReply is returned in place of a draft that asserted numbers
// absent from the supplied context
const clarificationReply = "I want to make sure I give you accurate details. " +
	"Could you tell me which vehicle you're asking about? I'll confirm the exact figures for you."

// Engine generates bounded, context-only draft replies
type Engine struct {
	model   ChatModel
	store   AssistanceStore
	policy  retry.Policy
	limiter *rate.Limiter
	now     func() time.Time
}

// NewEngine creates a suggestion engine. limiter may be nil to disable
// provider rate limiting.
func NewEngine(model ChatModel, store AssistanceStore, policy retry.Policy, limiter *rate.Limiter) *Engine {
	return &Engine{
		model:   model,
		store:   store,
		policy:  policy,
		limiter: limiter,
		now:     time.Now,
	}
}

// providerReply is the JSON shape requested from the model
type providerReply struct {
	Reply              string   `json:"reply"`
	Confidence         *float64 `json:"confidence"`
	NeedsClarification bool     `json:"needs_clarification"`
}

// Suggest generates a draft reply for the given context and records the
// AIAssistance for the message it was generated for. Provider failure
// returns a degraded suggestion, never an error.
func (e *Engine) Suggest(ctx context.Context, messageID string, convoCtx Context) (Suggestion, *models.AIAssistance, error) {
	logger := logging.Component("suggest")

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.degraded(ctx, messageID, "rate limiter interrupted")
		}
	}

	prompt := buildPrompt(convoCtx)

	var raw string
	result := retry.Execute(ctx, e.policy, "ai_suggest", func(attemptCtx context.Context) error {
		var err error
		raw, err = e.model.Generate(attemptCtx, prompt)
		return err
	})
	if result.Err() != nil {
		logger.Warn().Err(result.Err()).
			Int("attempts", result.Attempts).
			Str("message_id", messageID).
			Msg("suggestion provider exhausted retries")
		return e.degraded(ctx, messageID, "provider unavailable")
	}

	reply, err := parseReply(raw)
	if err != nil {
		logger.Warn().Err(err).Str("message_id", messageID).Msg("unparseable provider output")
		return e.degraded(ctx, messageID, "malformed provider output")
	}

	suggestion := Suggestion{
		Text:               strings.TrimSpace(reply.Reply),
		Confidence:         reply.Confidence,
		NeedsClarification: reply.NeedsClarification,
	}
	if suggestion.Text == "" {
		return e.degraded(ctx, messageID, "empty draft")
	}

	// Validation gate: a numeric claim the context cannot vouch for
	// downgrades the draft to a clarifying question.
	grounding := CheckGrounding(suggestion.Text, contextText(convoCtx))
	if !grounding.Grounded {
		logger.Info().
			Strs("ungrounded", grounding.Ungrounded).
			Str("message_id", messageID).
			Msg("draft asserted numbers absent from context")
		suggestion.Text = clarificationReply
		suggestion.NeedsClarification = true
		suggestion.Confidence = nil
		suggestion.Flags = append(suggestion.Flags, "needs-clarification")
	}

	assistance, err := e.record(ctx, messageID, suggestion)
	if err != nil {
		return Suggestion{}, nil, err
	}
	return suggestion, assistance, nil
}

// degraded records and returns a "no suggestion available" result
func (e *Engine) degraded(ctx context.Context, messageID, reason string) (Suggestion, *models.AIAssistance, error) {
	suggestion := Suggestion{
		Degraded: true,
		Flags:    []string{"no-suggestion", reason},
	}
	assistance, err := e.record(ctx, messageID, suggestion)
	if err != nil {
		return Suggestion{}, nil, err
	}
	return suggestion, assistance, nil
}

func (e *Engine) record(ctx context.Context, messageID string, suggestion Suggestion) (*models.AIAssistance, error) {
	now := e.now().UTC()
	assistance := &models.AIAssistance{
		ID:                 uuid.NewString(),
		MessageID:          messageID,
		SuggestedText:      suggestion.Text,
		Confidence:         suggestion.Confidence,
		NeedsClarification: suggestion.NeedsClarification,
		Disposition:        models.DispositionPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.store.Insert(ctx, assistance); err != nil {
		return nil, fmt.Errorf("failed to record assistance: %w", err)
	}
	return assistance, nil
}

// buildPrompt renders the context window. Nothing outside convoCtx reaches
// the prompt.
func buildPrompt(convoCtx Context) string {
	var b strings.Builder
	b.WriteString("You are drafting a reply for a dealership staff member.\n")
	b.WriteString("Use ONLY the conversation and facts below. If a price, quantity, or availability ")
	b.WriteString("is not stated in the facts, ask a clarifying question instead of guessing.\n\n")

	if len(convoCtx.Facts) > 0 {
		b.WriteString("FACTS:\n")
		for _, f := range convoCtx.Facts {
			b.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Value))
		}
		b.WriteString("\n")
	}

	b.WriteString("CONVERSATION:\n")
	for _, m := range convoCtx.Messages {
		b.WriteString(fmt.Sprintf("[%s] %s\n", m.Sender, m.Body))
	}

	b.WriteString("\nRespond with JSON only: ")
	b.WriteString(`{"reply": "...", "confidence": 0.0, "needs_clarification": false}`)
	return b.String()
}

// contextText flattens the allowed context for the grounding check
func contextText(convoCtx Context) string {
	var b strings.Builder
	for _, m := range convoCtx.Messages {
		b.WriteString(m.Body)
		b.WriteString("\n")
	}
	for _, f := range convoCtx.Facts {
		b.WriteString(f.Name)
		b.WriteString(" ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}
	return b.String()
}

// parseReply extracts the structured draft from raw model output, repairing
// malformed JSON before giving up
func parseReply(raw string) (providerReply, error) {
	var reply providerReply

	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if err := json.Unmarshal([]byte(trimmed), &reply); err == nil {
		return reply, nil
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return reply, fmt.Errorf("failed to repair provider JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
		return reply, fmt.Errorf("repaired JSON still invalid: %w", err)
	}
	return reply, nil
}
