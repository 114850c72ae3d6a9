package flow

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/store"
	"github.com/BTreeMap/FastCab/internal/util"
)

func TestIkoyiToVIScenario(t *testing.T) {
	h := newHarness(t)

	reply := h.send(t, "hi")
	if !strings.Contains(reply, "join cap-pleasure") {
		t.Errorf("greeting for new user should explain how to join, got %q", reply)
	}
	h.expectState(t, models.StateNew)

	h.send(t, "join cap-pleasure")
	h.expectState(t, models.StateConnectedIdle)

	reply = h.send(t, "ride from Ikoyi to VI")
	h.expectState(t, models.StateSelectingRide)
	for _, want := range []string{"3.1 km", "₦972", "₦1,458", "₦2,275"} {
		if !strings.Contains(reply, want) {
			t.Errorf("quote missing %q: %q", want, reply)
		}
	}

	reply = h.send(t, "1")
	h.expectState(t, models.StateTripConfirmed)
	sess := h.session(t)
	if sess.Pending != nil {
		t.Errorf("pending ride should be cleared after booking: %+v", sess.Pending)
	}
	id := sess.Trip.BookingID
	if !util.IsBookingID(id) {
		t.Errorf("booking id %q has wrong shape", id)
	}
	if !strings.Contains(reply, id) || !strings.Contains(reply, "John Doe") {
		t.Errorf("confirmation should name booking and driver: %q", reply)
	}
	b := h.booking(t, id)
	if math.Abs(b.Fare-972) > 1e-6 || b.RideClassKey != "economy" || b.Status != models.BookingConfirmed {
		t.Errorf("booking = %+v", b)
	}

	// Nothing before 8s.
	h.timer.Advance(7 * time.Second)
	if n := len(h.sender.messages()); n != 0 {
		t.Fatalf("sent %d messages before arrival", n)
	}

	h.timer.Advance(1 * time.Second) // t=8s
	msgs := h.sender.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Body, "arrived") || msgs[0].To != testPhone {
		t.Fatalf("arrival messages = %+v", msgs)
	}
	if got := h.booking(t, id).Status; got != models.BookingArrived {
		t.Errorf("status at 8s = %s, want arrived", got)
	}

	reply = h.send(t, "track")
	if !strings.Contains(reply, "arrived") {
		t.Errorf("track after arrival = %q", reply)
	}

	h.timer.Advance(5 * time.Second) // t=13s
	msgs = h.sender.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Body, "started") {
		t.Fatalf("start messages = %+v", msgs)
	}
	if got := h.booking(t, id).Status; got != models.BookingInProgress {
		t.Errorf("status at 13s = %s, want in_progress", got)
	}
	h.expectState(t, models.StateTripConfirmed)

	h.timer.Advance(15 * time.Second) // t=28s
	msgs = h.sender.messages()
	if len(msgs) != 3 || !strings.Contains(msgs[2].Body, "complete") {
		t.Fatalf("completion messages = %+v", msgs)
	}
	if got := h.booking(t, id).Status; got != models.BookingCompleted {
		t.Errorf("status at 28s = %s, want completed", got)
	}
	h.expectState(t, models.StateAwaitingRating)

	h.send(t, "5")
	h.expectState(t, models.StateAwaitingPayment)
	if got := h.booking(t, id).Rating; got != 5 {
		t.Errorf("rating = %d, want 5", got)
	}

	reply = h.send(t, "cash")
	h.expectState(t, models.StateConnectedIdle)
	if !strings.Contains(reply, "₦972") {
		t.Errorf("payment reply = %q", reply)
	}
	b = h.booking(t, id)
	if b.PaymentMethod != models.PaymentCash || b.Status != models.BookingCompleted {
		t.Errorf("booking after pay = %+v", b)
	}
	if h.session(t).Trip != nil {
		t.Error("active trip should be cleared after payment")
	}
	h.notifier.Wait()
}

func TestSelectWithoutPendingRide(t *testing.T) {
	h := newHarness(t)
	h.send(t, "join cap-pleasure")

	reply := h.send(t, "1")
	if !strings.Contains(reply, "no pending booking") {
		t.Errorf("reply = %q, want no pending booking", reply)
	}
	sess := h.session(t)
	if sess.State != models.StateConnectedIdle || sess.Trip != nil {
		t.Errorf("session changed: %+v", sess)
	}
	if h.timer.Pending() != 0 {
		t.Errorf("no notifications should be scheduled, got %d", h.timer.Pending())
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.send(t, "join cap-pleasure")
	second := h.send(t, "join cap-pleasure")
	h.expectState(t, models.StateConnectedIdle)
	if !strings.Contains(second, "already connected") {
		t.Errorf("second connect reply = %q", second)
	}
	if first == second {
		t.Error("first connect should welcome, not say already connected")
	}
	if !h.session(t).Connected {
		t.Error("connected flag not set")
	}
}

func TestJoinCodeWithoutSpace(t *testing.T) {
	h := newHarness(t)
	h.send(t, "joincap-pleasure")
	h.expectState(t, models.StateConnectedIdle)
}

func TestBookBeforeConnectRepromptsSetup(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "ride from Ikoyi to VI")
	h.expectState(t, models.StateNew)
	if !strings.Contains(reply, "join cap-pleasure") {
		t.Errorf("reply = %q, want setup instructions", reply)
	}
}

func TestRequoteWhileSelecting(t *testing.T) {
	h := newHarness(t)
	h.send(t, "join cap-pleasure")
	h.send(t, "ride from Ikoyi to VI")
	reply := h.send(t, "yaba to ikeja")
	h.expectState(t, models.StateSelectingRide)
	sess := h.session(t)
	if sess.Pending == nil || sess.Pending.PickupKey != "yaba" || sess.Pending.DropoffKey != "ikeja" {
		t.Errorf("pending = %+v", sess.Pending)
	}
	if !strings.Contains(reply, "Yaba") {
		t.Errorf("reply = %q", reply)
	}

	// Anything unmatched re-emits the quote.
	reply = h.send(t, "start")
	if !strings.Contains(reply, "Choose your ride") {
		t.Errorf("reprompt = %q", reply)
	}
}

func TestCancelFlow(t *testing.T) {
	h := newHarness(t)
	id := h.bookIkoyiToVI(t)

	h.send(t, "cancel")
	h.expectState(t, models.StateCancelConfirm)

	reply := h.send(t, "no")
	h.expectState(t, models.StateTripConfirmed)
	if !strings.Contains(reply, "still on") {
		t.Errorf("decline reply = %q", reply)
	}

	h.send(t, "cancel")
	h.send(t, "maybe later")
	h.expectState(t, models.StateTripConfirmed)

	h.send(t, "cancel")
	reply = h.send(t, "yes")
	h.expectState(t, models.StateConnectedIdle)
	if !strings.Contains(reply, "cancelled") {
		t.Errorf("cancel reply = %q", reply)
	}
	if got := h.booking(t, id).Status; got != models.BookingCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	if h.timer.Pending() != 0 {
		t.Errorf("pending notifications after cancel = %d", h.timer.Pending())
	}

	h.timer.Advance(time.Minute)
	if n := len(h.sender.messages()); n != 0 {
		t.Errorf("sent %d notifications for a cancelled booking", n)
	}
	h.notifier.Wait()
}

func TestCancelledBookingSuppressesQueuedNotifications(t *testing.T) {
	h := newHarness(t)
	id := h.bookIkoyiToVI(t)

	h.timer.Advance(8 * time.Second)
	if n := len(h.sender.messages()); n != 1 {
		t.Fatalf("arrival not sent: %d", n)
	}

	// Simulate a cancellation that raced with the timers: the status flips
	// but the queued fires were not removed.
	if err := h.store.UpdateBookingStatus(context.Background(), id, models.BookingCancelled); err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}
	h.timer.Advance(time.Minute)
	if n := len(h.sender.messages()); n != 1 {
		t.Errorf("sent %d messages, want only the arrival", n)
	}
	if got := h.booking(t, id).Status; got != models.BookingCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	h.expectState(t, models.StateTripConfirmed)
}

func TestCompletedBookingIsClosed(t *testing.T) {
	h := newHarness(t)
	id := h.bookIkoyiToVI(t)
	h.timer.Advance(28 * time.Second)
	h.expectState(t, models.StateAwaitingRating)

	for _, text := range []string{"track", "cancel"} {
		reply := h.send(t, text)
		if !strings.Contains(reply, "don't have an active trip") {
			t.Errorf("%s while awaiting rating = %q", text, reply)
		}
		h.expectState(t, models.StateAwaitingRating)
	}

	// Paying directly skips the rating.
	h.send(t, "transfer")
	h.expectState(t, models.StateConnectedIdle)
	b := h.booking(t, id)
	if b.Rating != 0 || b.PaymentMethod != models.PaymentTransfer {
		t.Errorf("booking = %+v", b)
	}

	for _, text := range []string{"track", "cancel"} {
		reply := h.send(t, text)
		if !strings.Contains(reply, "don't have an active trip") {
			t.Errorf("%s after payment = %q", text, reply)
		}
	}
	h.send(t, "4")
	if got := h.booking(t, id).Rating; got != 0 {
		t.Errorf("rating changed after payment: %d", got)
	}
	if got := h.booking(t, id).Status; got != models.BookingCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestTripCompletesDuringCancelConfirm(t *testing.T) {
	h := newHarness(t)
	h.bookIkoyiToVI(t)
	h.timer.Advance(13 * time.Second)
	h.send(t, "cancel")
	h.expectState(t, models.StateCancelConfirm)

	h.timer.Advance(15 * time.Second)
	h.expectState(t, models.StateAwaitingRating)

	reply := h.send(t, "yes")
	h.expectState(t, models.StateAwaitingRating)
	if !strings.Contains(reply, "rating") {
		t.Errorf("yes after completion should re-prompt for a rating, got %q", reply)
	}
}

func TestNotificationSendFailureStillAdvances(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("twilio: 503")
	id := h.bookIkoyiToVI(t)

	h.timer.Advance(28 * time.Second)
	if got := h.booking(t, id).Status; got != models.BookingCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	h.expectState(t, models.StateAwaitingRating)
}

func TestInvalidInputs(t *testing.T) {
	h := newHarness(t)
	h.send(t, "join cap-pleasure")

	tests := []struct {
		text string
		want string
	}{
		{"ride from ikoyi to abuja", "don't know *abuja*"},
		{"from yaba to yaba", "same place"},
		{"cash", "nothing to pay"},
		{"help", "Fast Cab help"},
		{"qwerty", "didn't understand"},
	}
	for _, tt := range tests {
		reply := h.send(t, tt.text)
		if !strings.Contains(reply, tt.want) {
			t.Errorf("%q reply = %q, want substring %q", tt.text, reply, tt.want)
		}
		h.expectState(t, models.StateConnectedIdle)
	}

	h.send(t, "ride from ikoyi to lekki")
	if reply := h.send(t, "8"); !strings.Contains(reply, "number from 1 to 3") {
		t.Errorf("invalid selection reply = %q", reply)
	}
	h.expectState(t, models.StateSelectingRide)
}

func TestMessageTooLong(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, strings.Repeat("a", models.MaxMessageLength+1))
	if reply != replyTooLong {
		t.Errorf("reply = %q", reply)
	}
}

func TestUserRecordedWithProfileName(t *testing.T) {
	h := newHarness(t)
	h.send(t, "hello")
	u, err := h.store.GetUser(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "Tolu" {
		t.Errorf("name = %q, want Tolu", u.Name)
	}
}

// failingStore fails CreateBooking so the engine's downstream error path runs.
type failingStore struct {
	store.Store
}

func (failingStore) CreateBooking(context.Context, models.Booking) error {
	return errors.New("disk full")
}

func TestDownstreamErrorLeavesStateUnchanged(t *testing.T) {
	h := newHarnessWithStore(t, failingStore{Store: store.NewInMemoryStore()})
	h.send(t, "join cap-pleasure")
	h.send(t, "ride from Ikoyi to VI")

	_, err := h.engine.HandleMessage(context.Background(), testPhone, "", "1")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	sess := h.session(t)
	if sess.State != models.StateSelectingRide || sess.Pending == nil {
		t.Errorf("session changed on failure: %+v", sess)
	}
	if h.timer.Pending() != 0 {
		t.Errorf("notifications scheduled despite failure: %d", h.timer.Pending())
	}
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	if _, err := NewEngine(Dependencies{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestFormatNaira(t *testing.T) {
	tests := map[float64]string{
		0:       "₦0",
		972:     "₦972",
		1458:    "₦1,458",
		2275.4:  "₦2,275",
		1234567: "₦1,234,567",
		999.6:   "₦1,000",
	}
	for in, want := range tests {
		if got := formatNaira(in); got != want {
			t.Errorf("formatNaira(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNotifierStopCancelsQueuedFires(t *testing.T) {
	h := newHarness(t)
	h.bookIkoyiToVI(t)
	if h.timer.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", h.timer.Pending())
	}

	h.notifier.Stop()
	if h.timer.Pending() != 0 {
		t.Errorf("pending = %d after Stop, want 0", h.timer.Pending())
	}
	h.timer.Advance(time.Minute)
	if n := len(h.sender.messages()); n != 0 {
		t.Errorf("sent %d messages after Stop", n)
	}
	// Wait must not block once every fire has been cancelled.
	h.notifier.Wait()
}

func TestNotifierResumeAfterRestart(t *testing.T) {
	h := newHarness(t)
	id := h.bookIkoyiToVI(t)
	// A restart loses every queued fire.
	h.notifier.Stop()

	b := h.booking(t, id)
	if !h.notifier.Resume(*b, 5*time.Second) {
		t.Fatal("Resume returned false for a confirmed booking")
	}
	if h.timer.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", h.timer.Pending())
	}
	h.timer.Advance(2 * time.Second)
	if n := len(h.sender.messages()); n != 0 {
		t.Fatalf("sent %d messages before the remaining arrival delay", n)
	}
	h.timer.Advance(time.Second)
	if got := h.booking(t, id).Status; got != models.BookingArrived {
		t.Fatalf("status = %s, want arrived", got)
	}
	h.timer.Advance(20 * time.Second)
	h.notifier.Wait()
	if got := h.booking(t, id).Status; got != models.BookingCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	h.expectState(t, models.StateAwaitingRating)
}

func TestNotifierResumeSkipsFinishedTrips(t *testing.T) {
	h := newHarness(t)
	for _, status := range []models.BookingStatus{models.BookingCompleted, models.BookingCancelled} {
		b := models.Booking{ID: "FCDONE00", Phone: testPhone, Status: status}
		if h.notifier.Resume(b, 0) {
			t.Errorf("Resume(%s) = true, want false", status)
		}
	}
	if h.timer.Pending() != 0 {
		t.Errorf("pending = %d, want 0", h.timer.Pending())
	}
}

func TestNotifierResumeOverdueStageFiresImmediately(t *testing.T) {
	h := newHarness(t)
	id := h.bookIkoyiToVI(t)
	h.notifier.Stop()
	if err := h.store.UpdateBookingStatus(context.Background(), id, models.BookingInProgress); err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}

	h.notifier.Resume(*h.booking(t, id), time.Hour)
	if h.timer.Pending() != 1 {
		t.Fatalf("pending = %d, want only completion", h.timer.Pending())
	}
	h.timer.Advance(0)
	h.notifier.Wait()
	if got := h.booking(t, id).Status; got != models.BookingCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

// flakySessionStore fails SaveSession while fail is set.
type flakySessionStore struct {
	store.Store
	fail bool
}

func (s *flakySessionStore) SaveSession(ctx context.Context, sess models.Session) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.SaveSession(ctx, sess)
}

func activeBookings(t *testing.T, st store.Store) []models.Booking {
	t.Helper()
	active, err := st.ListActiveBookings(context.Background())
	if err != nil {
		t.Fatalf("ListActiveBookings: %v", err)
	}
	return active
}

func TestFailedSessionSaveCancelsNewBooking(t *testing.T) {
	st := &flakySessionStore{Store: store.NewInMemoryStore()}
	h := newHarnessWithStore(t, st)
	h.send(t, "join cap-pleasure")
	h.send(t, "ride from Ikoyi to VI")

	st.fail = true
	if _, err := h.engine.HandleMessage(context.Background(), testPhone, "", "1"); err == nil {
		t.Fatal("expected session save error")
	}
	if n := len(activeBookings(t, st)); n != 0 {
		t.Fatalf("live bookings after failed select = %d, want 0", n)
	}
	if h.timer.Pending() != 0 {
		t.Fatalf("notifications scheduled after failed select: %d", h.timer.Pending())
	}
	h.expectState(t, models.StateSelectingRide)

	st.fail = false
	h.send(t, "2")
	if n := len(activeBookings(t, st)); n != 1 {
		t.Fatalf("live bookings after retry = %d, want 1", n)
	}
	h.expectState(t, models.StateTripConfirmed)
}

func TestFailedSessionSaveKeepsCancelledTripRunning(t *testing.T) {
	st := &flakySessionStore{Store: store.NewInMemoryStore()}
	h := newHarnessWithStore(t, st)
	id := h.bookIkoyiToVI(t)
	h.send(t, "cancel")

	st.fail = true
	if _, err := h.engine.HandleMessage(context.Background(), testPhone, "", "yes"); err == nil {
		t.Fatal("expected session save error")
	}
	st.fail = false

	if got := h.booking(t, id).Status; got != models.BookingConfirmed {
		t.Fatalf("status after failed cancel = %s, want confirmed", got)
	}
	if h.timer.Pending() != 3 {
		t.Fatalf("pending = %d, want the 3 trip notifications", h.timer.Pending())
	}
	h.expectState(t, models.StateCancelConfirm)

	h.timer.Advance(8 * time.Second)
	if got := h.booking(t, id).Status; got != models.BookingArrived {
		t.Errorf("status = %s, want arrived", got)
	}
	if n := len(h.sender.messages()); n != 1 {
		t.Errorf("sent %d messages, want the arrival notice", n)
	}
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	h := newHarness(t)
	h.send(t, "join cap-pleasure")

	atLimit := strings.Repeat("🚕", models.MaxMessageLength)
	if reply := h.send(t, atLimit); reply == replyTooLong {
		t.Errorf("%d-character emoji message rejected as too long", models.MaxMessageLength)
	}
	if reply := h.send(t, atLimit+"🚕"); reply != replyTooLong {
		t.Errorf("over-limit reply = %q, want too-long reply", reply)
	}
}
