package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/BTreeMap/FastCab/internal/metrics"
	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/store"
)

// Dependencies holds everything the engine needs. Store, Catalog and
// Classifier are required; Locks and Notifier are created if nil.
type Dependencies struct {
	Store      store.Store
	Catalog    *catalog.Catalog
	Classifier *intent.Classifier
	Locks      *KeyedMutex
	Notifier   *Notifier
}

// Opts holds optional engine configuration.
type Opts struct {
	JoinCode string
	Clock    func() time.Time
}

// Option defines a function for configuring the Engine.
type Option func(*Opts)

// WithJoinCode sets the join keyword quoted in the setup instructions.
func WithJoinCode(code string) Option {
	return func(o *Opts) { o.JoinCode = code }
}

// WithClock overrides time.Now, mainly for tests driven by ManualTimer.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Engine runs the per-user conversation state machine.
type Engine struct {
	store      store.Store
	catalog    *catalog.Catalog
	classifier *intent.Classifier
	locks      *KeyedMutex
	notifier   *Notifier
	now        func() time.Time
	replies    replies
	table      map[transitionKey]handler
}

// NewEngine validates dependencies and builds the transition table.
func NewEngine(deps Dependencies, opts ...Option) (*Engine, error) {
	if deps.Store == nil || deps.Catalog == nil || deps.Classifier == nil {
		return nil, errors.New("flow: store, catalog and classifier are required")
	}
	cfg := Opts{JoinCode: intent.DefaultJoinCode, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	e := &Engine{
		store:      deps.Store,
		catalog:    deps.Catalog,
		classifier: deps.Classifier,
		locks:      deps.Locks,
		notifier:   deps.Notifier,
		now:        cfg.Clock,
		replies:    replies{catalog: deps.Catalog, joinCode: cfg.JoinCode},
	}
	e.table = e.transitions()
	return e, nil
}

// HandleMessage processes one inbound message and returns the reply text.
// Input problems produce a corrective reply with a nil error; a non-nil
// error means a downstream failure and no state was changed.
func (e *Engine) HandleMessage(ctx context.Context, phone, profileName, text string) (string, error) {
	if phone == "" {
		return "", models.ErrEmptyPhone
	}
	if n := utf8.RuneCountInString(text); n > models.MaxMessageLength {
		slog.Warn("Engine.HandleMessage: message too long", "phone", phone, "length", n)
		return replyTooLong, nil
	}

	unlock := e.locks.Lock(phone)
	defer unlock()

	if err := e.store.SaveUser(ctx, models.User{Phone: phone, Name: profileName}); err != nil {
		return "", fmt.Errorf("save user: %w", err)
	}
	sess, err := e.store.GetSession(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	before := sess.State
	res := e.classifier.Classify(ctx, text, intent.Context{
		State:            sess.State,
		HasPendingRide:   sess.Pending != nil,
		HasActiveBooking: hasActiveBooking(sess),
	})
	metrics.InboundMessages.WithLabelValues(string(res.Intent)).Inc()

	t := &turn{phone: phone, sess: &sess, result: res}
	reply, err := e.lookup(sess.State, res.Intent)(ctx, t)
	if err != nil {
		slog.Error("Engine.HandleMessage: transition failed", "phone", phone, "state", before, "intent", res.Intent, "error", err)
		return "", err
	}

	sess.LastActivity = e.now()
	if err := e.store.SaveSession(ctx, sess); err != nil {
		e.rollback(ctx, t)
		return "", fmt.Errorf("save session: %w", err)
	}
	if sess.State != before {
		metrics.Transitions.WithLabelValues(string(before), string(sess.State)).Inc()
	}
	slog.Debug("Engine.HandleMessage: handled", "phone", phone, "intent", res.Intent, "reason", res.Reason, "from", before, "to", sess.State)

	// Timers change only after the booking and session are durable.
	if e.notifier != nil {
		if t.scheduleBooking != "" {
			e.notifier.Schedule(phone, t.scheduleBooking)
		}
		if t.cancelBooking != "" {
			e.notifier.CancelBooking(t.cancelBooking)
		}
	}
	return reply, nil
}

// rollback reverts the turn's store writes after a failed session save, so
// the stored bookings keep matching the stored session.
func (e *Engine) rollback(ctx context.Context, t *turn) {
	ctx = context.WithoutCancel(ctx)
	for i := len(t.undo) - 1; i >= 0; i-- {
		if err := t.undo[i](ctx); err != nil {
			slog.Error("Engine.rollback: undo failed", "phone", t.phone, "error", err)
		}
	}
}

// hasActiveBooking reports whether the session holds a trip that can still
// be tracked or cancelled.
func hasActiveBooking(sess models.Session) bool {
	if sess.Trip == nil {
		return false
	}
	return sess.State == models.StateTripConfirmed || sess.State == models.StateCancelConfirm
}
