package api

import (
	"context"
	"sync"
	"time"

	"github.com/dealerdesk/internal/events"
)

const defaultFeedCapacity = 1024

// EventFeed buffers recent domain events for polling clients. The console UI
// polls it instead of holding a push connection; events older than the
// buffer are dropped, which is acceptable for a live activity feed.
type EventFeed struct {
	mu       sync.RWMutex
	buffer   []events.Event
	capacity int
}

// NewEventFeed creates a feed holding up to capacity events
func NewEventFeed(capacity int) *EventFeed {
	if capacity <= 0 {
		capacity = defaultFeedCapacity
	}
	return &EventFeed{capacity: capacity}
}

// Register subscribes the feed to every event on the bus
func (f *EventFeed) Register(bus *events.Bus) {
	bus.SubscribeAll(f.record)
}

func (f *EventFeed) record(ctx context.Context, evt events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffer = append(f.buffer, evt)
	if len(f.buffer) > f.capacity {
		f.buffer = f.buffer[len(f.buffer)-f.capacity:]
	}
	return nil
}

// Since returns events that occurred strictly after the given time, oldest
// first, capped at limit
func (f *EventFeed) Since(since time.Time, limit int) []events.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]events.Event, 0, limit)
	for _, evt := range f.buffer {
		if evt.OccurredAt.After(since) {
			out = append(out, evt)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
