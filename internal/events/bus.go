package events

import (
	"context"
	"sync"

	"github.com/dealerdesk/internal/logging"
)

// Handler consumes one event. Errors are logged and absorbed by the bus;
// an event handler must never be able to fail the action that emitted the
// event.
type Handler func(ctx context.Context, evt Event) error

// Bus is a synchronous in-process dispatcher. Each subscriber is invoked
// independently: a failing or panicking handler does not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for one event kind
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every event kind
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish dispatches evt to every matching handler. Publish never returns
// an error: emission must not be able to roll back the state change that
// produced the event.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	matched := append([]Handler{}, b.handlers[evt.Kind]...)
	matched = append(matched, b.all...)
	b.mu.RUnlock()

	logger := logging.Component("events")
	for _, h := range matched {
		b.deliver(ctx, evt, h)
	}
	if len(matched) == 0 {
		logger.Debug().Str("kind", string(evt.Kind)).Msg("no subscribers for event")
	}
}

func (b *Bus) deliver(ctx context.Context, evt Event, h Handler) {
	logger := logging.Component("events")
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("kind", string(evt.Kind)).
				Str("event_id", evt.ID).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()

	if err := h(ctx, evt); err != nil {
		logger.Error().Err(err).
			Str("kind", string(evt.Kind)).
			Str("event_id", evt.ID).
			Str("entity_id", evt.EntityID).
			Msg("event handler failed")
	}
}
