package flow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/metrics"
	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/store"
)

// notifyTimeout bounds the store and send work of a single notification.
const notifyTimeout = 30 * time.Second

// Delays are the gaps between trip notifications. Offsets are cumulative:
// arrival fires at DriverArrival, start at DriverArrival+TripStart, and
// completion at DriverArrival+TripStart+TripDuration.
type Delays struct {
	DriverArrival time.Duration
	TripStart     time.Duration
	TripDuration  time.Duration
}

// DefaultDelays returns the demo timings: 8s, +5s, +15s.
func DefaultDelays() Delays {
	return Delays{
		DriverArrival: 8 * time.Second,
		TripStart:     5 * time.Second,
		TripDuration:  15 * time.Second,
	}
}

// Sender delivers a proactive WhatsApp message. messaging.Service satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

type stage struct {
	name   string
	status models.BookingStatus
	final  bool
}

var tripStages = []stage{
	{name: "arrived", status: models.BookingArrived},
	{name: "started", status: models.BookingInProgress},
	{name: "completed", status: models.BookingCompleted, final: true},
}

// Notifier simulates a trip by sending delayed status messages.
type Notifier struct {
	store   store.Store
	catalog *catalog.Catalog
	sender  Sender
	timer   Timer
	locks   *KeyedMutex
	delays  Delays
	replies replies

	mu      sync.Mutex
	pending map[string][]*scheduledFire // booking id -> queued fires
	wg      sync.WaitGroup
}

// scheduledFire is claimed exactly once, either by its timer or by CancelBooking.
type scheduledFire struct {
	timerID string
	claimed atomic.Bool
}

func (f *scheduledFire) claim() bool {
	return f.claimed.CompareAndSwap(false, true)
}

// NewNotifier creates a notifier. locks must be the engine's KeyedMutex so
// fires and inbound messages for the same user are serialised.
func NewNotifier(st store.Store, cat *catalog.Catalog, sender Sender, timer Timer, locks *KeyedMutex, delays Delays) *Notifier {
	return &Notifier{
		store:   st,
		catalog: cat,
		sender:  sender,
		timer:   timer,
		locks:   locks,
		delays:  delays,
		replies: replies{catalog: cat},
		pending: make(map[string][]*scheduledFire),
	}
}

// Schedule queues the arrival, start and completion messages for a booking.
func (n *Notifier) Schedule(phone, bookingID string) {
	n.scheduleFrom(phone, bookingID, 0, 0)
}

// Resume queues the notifications a stored booking has not reached yet,
// counting elapsed as time already spent since its last status change.
// It returns false when the booking has no trip left to simulate.
func (n *Notifier) Resume(b models.Booking, elapsed time.Duration) bool {
	next := -1
	switch b.Status {
	case models.BookingConfirmed:
		next = 0
	case models.BookingArrived:
		next = 1
	case models.BookingInProgress:
		next = 2
	}
	if next < 0 {
		return false
	}
	n.scheduleFrom(b.Phone, b.ID, next, elapsed)
	return true
}

func (n *Notifier) gaps() []time.Duration {
	return []time.Duration{n.delays.DriverArrival, n.delays.TripStart, n.delays.TripDuration}
}

// scheduleFrom queues tripStages[first:], shifting every offset back by elapsed.
func (n *Notifier) scheduleFrom(phone, bookingID string, first int, elapsed time.Duration) {
	gaps := n.gaps()
	offsets := make([]time.Duration, 0, len(tripStages)-first)
	offset := -elapsed
	for i := first; i < len(tripStages); i++ {
		offset += gaps[i]
		offsets = append(offsets, max(offset, 0))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, st := range tripStages[first:] {
		st := st
		f := &scheduledFire{}
		n.wg.Add(1)
		id, err := n.timer.ScheduleAfter(offsets[i], func() {
			if !f.claim() {
				return
			}
			defer n.wg.Done()
			n.fire(phone, bookingID, st)
		})
		if err != nil {
			n.wg.Done()
			slog.Error("Notifier.Schedule: failed to schedule", "phone", phone, "booking_id", bookingID, "stage", st.name, "error", err)
			continue
		}
		f.timerID = id
		n.pending[bookingID] = append(n.pending[bookingID], f)
	}
	slog.Info("Notifier.Schedule: trip notifications scheduled", "phone", phone, "booking_id", bookingID,
		"first_stage", tripStages[first].name, "offsets", offsets)
}

// CancelBooking drops any notifications still queued for the booking. Fires
// that already started see the cancelled status and stay silent.
func (n *Notifier) CancelBooking(bookingID string) {
	n.mu.Lock()
	fires := n.pending[bookingID]
	delete(n.pending, bookingID)
	n.mu.Unlock()

	for _, f := range fires {
		if !f.claim() {
			continue // already running
		}
		if err := n.timer.Cancel(f.timerID); err != nil {
			slog.Warn("Notifier.CancelBooking: cancel failed", "booking_id", bookingID, "timer_id", f.timerID, "error", err)
		}
		n.wg.Done()
	}
}

// Wait blocks until every scheduled fire has run or been cancelled.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Stop cancels every queued notification and waits for fires already running.
func (n *Notifier) Stop() {
	n.mu.Lock()
	ids := make([]string, 0, len(n.pending))
	for id := range n.pending {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	for _, id := range ids {
		n.CancelBooking(id)
	}
	n.wg.Wait()
	slog.Info("Notifier stopped", "cancelled_bookings", len(ids))
}

func (n *Notifier) fire(phone, bookingID string, st stage) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	body, ok := n.advance(ctx, phone, bookingID, st)
	if st.final {
		n.mu.Lock()
		delete(n.pending, bookingID)
		n.mu.Unlock()
	}
	if !ok {
		return
	}

	if err := n.sender.SendMessage(ctx, phone, body); err != nil {
		metrics.Notifications.WithLabelValues(st.name, "failed").Inc()
		slog.Error("Notifier.fire: send failed", "phone", phone, "booking_id", bookingID, "stage", st.name, "error", err)
		return
	}
	metrics.Notifications.WithLabelValues(st.name, "sent").Inc()
	slog.Debug("Notifier.fire: sent", "phone", phone, "booking_id", bookingID, "stage", st.name)
}

// advance applies the stage under the user's lock and returns the message to
// send. ok is false when the notification must be suppressed.
func (n *Notifier) advance(ctx context.Context, phone, bookingID string, st stage) (body string, ok bool) {
	unlock := n.locks.Lock(phone)
	defer unlock()

	b, err := n.store.GetBooking(ctx, bookingID)
	if err != nil {
		slog.Error("Notifier.advance: booking lookup failed", "phone", phone, "booking_id", bookingID, "stage", st.name, "error", err)
		return "", false
	}
	if b.Status == models.BookingCancelled {
		metrics.Notifications.WithLabelValues(st.name, "suppressed").Inc()
		slog.Info("Notifier.advance: booking cancelled, notification suppressed", "phone", phone, "booking_id", bookingID, "stage", st.name)
		return "", false
	}

	if err := n.store.UpdateBookingStatus(ctx, bookingID, st.status); err != nil {
		slog.Error("Notifier.advance: status update failed", "phone", phone, "booking_id", bookingID, "stage", st.name, "error", err)
		return "", false
	}
	b.Status = st.status

	if st.final {
		if err := n.completeSession(ctx, phone, bookingID); err != nil {
			slog.Error("Notifier.advance: session update failed", "phone", phone, "booking_id", bookingID, "error", err)
		}
	}

	dropoff, _ := n.catalog.Location(b.DropoffKey)
	switch st.status {
	case models.BookingArrived:
		driver, _ := n.catalog.Driver(b.DriverID)
		return n.replies.tripArrived(driver), true
	case models.BookingInProgress:
		return n.replies.tripStarted(dropoff), true
	default:
		return n.replies.tripCompleted(*b, dropoff), true
	}
}

// completeSession moves the user to awaiting_rating if the session still
// points at this booking.
func (n *Notifier) completeSession(ctx context.Context, phone, bookingID string) error {
	sess, err := n.store.GetSession(ctx, phone)
	if err != nil {
		return err
	}
	if sess.Trip == nil || sess.Trip.BookingID != bookingID {
		return nil
	}
	if sess.State != models.StateTripConfirmed && sess.State != models.StateCancelConfirm {
		return nil
	}
	from := sess.State
	sess.State = models.StateAwaitingRating
	if err := n.store.SaveSession(ctx, sess); err != nil {
		return err
	}
	metrics.Transitions.WithLabelValues(string(from), string(sess.State)).Inc()
	return nil
}
