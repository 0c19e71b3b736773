package billing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/internal/ledger"
	"github.com/dealerdesk/pkg/models"
)

const testSecret = "whsec_test"

type capturingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *capturingBus) Publish(ctx context.Context, evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *capturingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newTestProcessor() (*Processor, *MemoryStateStore, *capturingBus) {
	states := NewMemoryStateStore()
	bus := &capturingBus{}
	return NewProcessor(testSecret, ledger.NewMemoryLedger(), states, bus), states, bus
}

func signedBody(t *testing.T, ev Event) ([]byte, map[string]string) {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body, map[string]string{SignatureHeader: Sign(testSecret, body)}
}

func paymentEvent(id string, at time.Time) Event {
	return Event{
		ID:         id,
		Type:       EventPaymentSucceeded,
		OccurredAt: at,
		Data:       EventData{SubscriptionID: "sub_1", CustomerID: "cust_1", Tier: "pro"},
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	p, states, _ := newTestProcessor()

	body, _ := json.Marshal(paymentEvent("evt_1", time.Now()))
	decision, err := p.Handle(context.Background(), body, map[string]string{
		SignatureHeader: "sha256=deadbeef",
	})

	assert.Equal(t, Rejected, decision)
	assert.True(t, errs.IsAuth(err))

	_, err = states.Get(context.Background(), "sub_1")
	assert.True(t, errs.IsNotFound(err), "no partial processing on auth failure")
}

func TestHandleRejectsMissingSignature(t *testing.T) {
	p, _, _ := newTestProcessor()
	decision, err := p.Handle(context.Background(), []byte("{}"), nil)
	assert.Equal(t, Rejected, decision)
	assert.True(t, errs.IsAuth(err))
}

func TestHandleAppliesPayment(t *testing.T) {
	p, states, bus := newTestProcessor()

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	body, headers := signedBody(t, paymentEvent("evt_1", at))

	decision, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)
	assert.Equal(t, Accepted, decision)

	state, err := states.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, state.Status)
	assert.Equal(t, "evt_1", state.LastEventID)
	assert.Equal(t, at, state.LastEventAt)

	require.Equal(t, 1, bus.count())
	assert.Equal(t, events.KindPaymentRecorded, bus.events[0].Kind)
}

func TestHandleDuplicateDelivery(t *testing.T) {
	p, states, bus := newTestProcessor()
	body, headers := signedBody(t, paymentEvent("evt_123", time.Now().UTC()))

	decision, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)
	require.Equal(t, Accepted, decision)

	decision, err = p.Handle(context.Background(), body, headers)
	require.NoError(t, err)
	assert.Equal(t, Accepted, decision, "duplicate must be acknowledged without reprocessing")

	state, err := states.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_123", state.LastEventID)
	assert.Equal(t, 1, bus.count(), "side effects fire once")
}

func TestHandleConcurrentDuplicates(t *testing.T) {
	p, states, bus := newTestProcessor()
	body, headers := signedBody(t, paymentEvent("evt_123", time.Now().UTC()))

	const deliveries = 8
	decisions := make([]Decision, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], _ = p.Handle(context.Background(), body, headers)
		}(i)
	}
	wg.Wait()

	for _, d := range decisions {
		assert.Equal(t, Accepted, d)
	}
	state, err := states.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_123", state.LastEventID)
	assert.Equal(t, 1, bus.count(), "exactly one update and one emission")
}

func TestHandleOutOfOrderDelivery(t *testing.T) {
	p, states, _ := newTestProcessor()

	newer := Event{
		ID:         "evt_2",
		Type:       EventSubscriptionCancelled,
		OccurredAt: time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
		Data:       EventData{SubscriptionID: "sub_1", CustomerID: "cust_1"},
	}
	older := paymentEvent("evt_1", time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	body, headers := signedBody(t, newer)
	_, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)

	body, headers = signedBody(t, older)
	decision, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)
	assert.Equal(t, Accepted, decision, "stale events are acknowledged, just not applied")

	state, err := states.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, state.Status, "older event must not overwrite newer state")
	assert.Equal(t, "evt_2", state.LastEventID)
}

func TestHandleTimestampTieBreaksOnEventID(t *testing.T) {
	p, states, _ := newTestProcessor()
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	first := Event{
		ID:         "evt_b",
		Type:       EventSubscriptionCancelled,
		OccurredAt: at,
		Data:       EventData{SubscriptionID: "sub_1"},
	}
	second := paymentEvent("evt_a", at)

	body, headers := signedBody(t, first)
	_, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)

	body, headers = signedBody(t, second)
	_, err = p.Handle(context.Background(), body, headers)
	require.NoError(t, err)

	state, err := states.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "evt_b", state.LastEventID, "lexically larger event id wins the tie")
	assert.Equal(t, models.SubscriptionCancelled, state.Status)
}

func TestHandleUnknownEventTypeAcknowledged(t *testing.T) {
	p, states, bus := newTestProcessor()

	ev := Event{
		ID:         "evt_odd",
		Type:       "invoice.finalized",
		OccurredAt: time.Now().UTC(),
		Data:       EventData{SubscriptionID: "sub_1"},
	}
	body, headers := signedBody(t, ev)

	decision, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)
	assert.Equal(t, Accepted, decision)

	_, err = states.Get(context.Background(), "sub_1")
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, 0, bus.count())
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	p, _, _ := newTestProcessor()

	body := []byte(`{"type": "payment.succeeded"}`)
	decision, err := p.Handle(context.Background(), body, map[string]string{
		SignatureHeader: Sign(testSecret, body),
	})
	assert.Equal(t, Rejected, decision)
	assert.True(t, errs.IsValidation(err))
}

func TestHandlePreservesTierOnPartialEvent(t *testing.T) {
	p, states, _ := newTestProcessor()

	body, headers := signedBody(t, paymentEvent("evt_1", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)))
	_, err := p.Handle(context.Background(), body, headers)
	require.NoError(t, err)

	cancel := Event{
		ID:         "evt_2",
		Type:       EventSubscriptionCancelled,
		OccurredAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		Data:       EventData{SubscriptionID: "sub_1"},
	}
	body, headers = signedBody(t, cancel)
	_, err = p.Handle(context.Background(), body, headers)
	require.NoError(t, err)

	state, err := states.Get(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", state.Tier, "omitted fields carry over from the stored row")
	assert.Equal(t, "cust_1", state.CustomerID)
}
