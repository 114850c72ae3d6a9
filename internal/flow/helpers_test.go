package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/store"
)

const testPhone = "+2348012345678"

type sentMessage struct {
	To   string
	Body string
}

// recordingSender is a Sender that records messages and can be made to fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingSender) SendMessage(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{To: to, Body: body})
	return nil
}

func (r *recordingSender) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

type harness struct {
	engine   *Engine
	store    store.Store
	catalog  *catalog.Catalog
	timer    *ManualTimer
	sender   *recordingSender
	notifier *Notifier
	locks    *KeyedMutex
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, store.NewInMemoryStore())
}

func newHarnessWithStore(t *testing.T, st store.Store) *harness {
	t.Helper()
	// Always assign the first driver so replies are predictable.
	cat, err := catalog.New(catalog.WithRandom(func(int) int { return 0 }))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	timer := NewManualTimer(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	locks := NewKeyedMutex()
	sender := &recordingSender{}
	n := NewNotifier(st, cat, sender, timer, locks, DefaultDelays())
	e, err := NewEngine(Dependencies{
		Store:      st,
		Catalog:    cat,
		Classifier: intent.NewClassifier(cat),
		Locks:      locks,
		Notifier:   n,
	}, WithClock(timer.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &harness{engine: e, store: st, catalog: cat, timer: timer, sender: sender, notifier: n, locks: locks}
}

func (h *harness) send(t *testing.T, text string) string {
	t.Helper()
	reply, err := h.engine.HandleMessage(context.Background(), testPhone, "Tolu", text)
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	return reply
}

func (h *harness) session(t *testing.T) models.Session {
	t.Helper()
	sess, err := h.store.GetSession(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return sess
}

func (h *harness) booking(t *testing.T, id string) *models.Booking {
	t.Helper()
	b, err := h.store.GetBooking(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBooking(%s): %v", id, err)
	}
	return b
}

func (h *harness) expectState(t *testing.T, want models.ConversationState) {
	t.Helper()
	if got := h.session(t).State; got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

// bookIkoyiToVI drives a fresh user to trip_confirmed and returns the booking id.
func (h *harness) bookIkoyiToVI(t *testing.T) string {
	t.Helper()
	h.send(t, "join cap-pleasure")
	h.send(t, "ride from Ikoyi to VI")
	h.send(t, "1")
	h.expectState(t, models.StateTripConfirmed)
	return h.session(t).Trip.BookingID
}
