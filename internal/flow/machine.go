package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/BTreeMap/FastCab/internal/metrics"
	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/util"
)

// Wildcards for the transition table.
const (
	anyState  models.ConversationState = "*"
	anyIntent intent.Intent            = "*"
)

type transitionKey struct {
	state  models.ConversationState
	intent intent.Intent
}

// turn is the mutable context of one inbound message.
type turn struct {
	phone  string
	sess   *models.Session
	result intent.Result

	// scheduleBooking is set when the turn created a booking whose trip
	// notifications should start once the session is saved.
	scheduleBooking string
	// cancelBooking is set when the turn cancelled a booking whose queued
	// notifications should be dropped once the session is saved.
	cancelBooking string
	// undo reverts store writes made by the handler if the session save fails.
	undo []func(ctx context.Context) error
}

func (t *turn) onFailure(fn func(ctx context.Context) error) {
	t.undo = append(t.undo, fn)
}

// handler applies one transition. It mutates t.sess and returns the reply.
type handler func(ctx context.Context, t *turn) (string, error)

func (e *Engine) transitions() map[transitionKey]handler {
	return map[transitionKey]handler{
		{models.StateNew, intent.Connect}:           e.handleConnect,
		{models.StateConnectedIdle, intent.Connect}: e.handleConnect,

		{models.StateNew, intent.Greet}:           e.handleGreet,
		{models.StateConnectedIdle, intent.Greet}: e.handleGreet,

		{models.StateConnectedIdle, intent.Book}: e.handleBook,
		{models.StateSelectingRide, intent.Book}: e.handleBook,

		{models.StateSelectingRide, intent.SelectRide}: e.handleSelectRide,

		{models.StateTripConfirmed, intent.Track}:  e.handleTrack,
		{models.StateTripConfirmed, intent.Cancel}: e.handleCancelRequest,

		{models.StateCancelConfirm, intent.Confirm}: e.handleCancelConfirm,
		{models.StateCancelConfirm, anyIntent}:      e.handleCancelAbort,

		{models.StateAwaitingRating, intent.Rate}:  e.handleRate,
		{models.StateAwaitingRating, intent.Pay}:   e.handlePay,
		{models.StateAwaitingPayment, intent.Pay}: e.handlePay,

		{anyState, intent.Help}:    e.handleHelp,
		{anyState, intent.Unknown}: e.handleUnknown,
	}
}

// lookup resolves a handler: exact match, then the state's wildcard, then
// the intent's wildcard, then a re-prompt of the current state.
func (e *Engine) lookup(state models.ConversationState, in intent.Intent) handler {
	for _, key := range []transitionKey{{state, in}, {state, anyIntent}, {anyState, in}} {
		if h, ok := e.table[key]; ok {
			return h
		}
	}
	return e.handleReprompt
}

func (e *Engine) handleConnect(_ context.Context, t *turn) (string, error) {
	already := t.sess.Connected && t.sess.State == models.StateConnectedIdle
	t.sess.Connected = true
	t.sess.State = models.StateConnectedIdle
	return e.replies.connected(already), nil
}

func (e *Engine) handleGreet(_ context.Context, t *turn) (string, error) {
	if t.sess.State == models.StateNew {
		return e.replies.setup(), nil
	}
	return e.replies.ridePrompt(), nil
}

func (e *Engine) handleBook(_ context.Context, t *turn) (string, error) {
	pickup, dropoff := t.result.Pickup, t.result.Dropoff
	distance := catalog.Distance(pickup, dropoff)
	t.sess.Pending = &models.PendingRide{PickupKey: pickup.Key, DropoffKey: dropoff.Key, DistanceKm: distance}
	t.sess.State = models.StateSelectingRide
	return e.replies.quote(pickup, dropoff, distance), nil
}

func (e *Engine) handleSelectRide(ctx context.Context, t *turn) (string, error) {
	pending := t.sess.Pending
	if pending == nil {
		return e.replies.unknown(intent.Result{Reason: intent.ReasonNoPendingRide}, *t.sess), nil
	}
	rc, ok := e.catalog.RideClassByChoice(t.result.Choice)
	if !ok {
		return e.replies.unknown(intent.Result{Reason: intent.ReasonInvalidSelection}, *t.sess), nil
	}
	pickup, okP := e.catalog.Location(pending.PickupKey)
	dropoff, okD := e.catalog.Location(pending.DropoffKey)
	if !okP || !okD {
		// The catalog changed under a stored quote; ask for the route again.
		t.sess.Pending = nil
		t.sess.State = models.StateConnectedIdle
		return e.replies.ridePrompt(), nil
	}

	driver := e.catalog.RandomDriver()
	now := e.now()
	booking := models.Booking{
		ID:           util.GenerateBookingID(),
		Phone:        t.phone,
		PickupKey:    pickup.Key,
		DropoffKey:   dropoff.Key,
		RideClassKey: rc.Key,
		DistanceKm:   pending.DistanceKm,
		Fare:         catalog.Fare(rc, pending.DistanceKm),
		DriverID:     driver.ID,
		Status:       models.BookingConfirmed,
		CreatedAt:    now,
	}
	if err := e.store.CreateBooking(ctx, booking); err != nil {
		return "", fmt.Errorf("create booking: %w", err)
	}
	metrics.Bookings.WithLabelValues(rc.Key).Inc()
	t.onFailure(func(ctx context.Context) error {
		return e.store.UpdateBookingStatus(ctx, booking.ID, models.BookingCancelled)
	})

	t.sess.Pending = nil
	t.sess.Trip = &models.ActiveTrip{
		BookingID:    booking.ID,
		DriverID:     driver.ID,
		DriverName:   driver.Name,
		Fare:         booking.Fare,
		RideClassKey: rc.Key,
		StartedAt:    now,
	}
	t.sess.State = models.StateTripConfirmed
	t.scheduleBooking = booking.ID

	return e.replies.booked(booking, driver, rc, pickup, dropoff, e.arrivalETA()), nil
}

func (e *Engine) handleTrack(ctx context.Context, t *turn) (string, error) {
	b, err := e.store.GetBooking(ctx, t.sess.Trip.BookingID)
	if err != nil {
		return "", fmt.Errorf("get booking: %w", err)
	}
	driver, _ := e.catalog.Driver(b.DriverID)
	return e.replies.track(*b, driver), nil
}

func (e *Engine) handleCancelRequest(_ context.Context, t *turn) (string, error) {
	t.sess.State = models.StateCancelConfirm
	return e.replies.cancelPrompt(t.sess.Trip.BookingID), nil
}

func (e *Engine) handleCancelConfirm(ctx context.Context, t *turn) (string, error) {
	id := t.sess.Trip.BookingID
	b, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get booking: %w", err)
	}
	if err := e.store.UpdateBookingStatus(ctx, id, models.BookingCancelled); err != nil {
		return "", fmt.Errorf("cancel booking: %w", err)
	}
	prev := b.Status
	t.onFailure(func(ctx context.Context) error {
		return e.store.UpdateBookingStatus(ctx, id, prev)
	})
	t.cancelBooking = id
	t.sess.ResetToIdle()
	return e.replies.cancelled(id), nil
}

func (e *Engine) handleCancelAbort(_ context.Context, t *turn) (string, error) {
	t.sess.State = models.StateTripConfirmed
	return e.replies.cancelAborted(), nil
}

func (e *Engine) handleRate(ctx context.Context, t *turn) (string, error) {
	trip := t.sess.Trip
	if trip == nil {
		t.sess.ResetToIdle()
		return e.replies.ridePrompt(), nil
	}
	if err := e.store.SetBookingRating(ctx, trip.BookingID, t.result.Rating); err != nil {
		return "", fmt.Errorf("rate booking: %w", err)
	}
	t.sess.State = models.StateAwaitingPayment
	return e.replies.rated(t.result.Rating, trip.Fare), nil
}

func (e *Engine) handlePay(ctx context.Context, t *turn) (string, error) {
	trip := t.sess.Trip
	if trip == nil {
		t.sess.ResetToIdle()
		return e.replies.ridePrompt(), nil
	}
	if err := e.store.SetBookingPayment(ctx, trip.BookingID, t.result.Payment); err != nil {
		return "", fmt.Errorf("record payment: %w", err)
	}
	fare := trip.Fare
	t.sess.ResetToIdle()
	return e.replies.paid(t.result.Payment, fare), nil
}

func (e *Engine) handleHelp(_ context.Context, _ *turn) (string, error) {
	return e.replies.help(), nil
}

func (e *Engine) handleUnknown(_ context.Context, t *turn) (string, error) {
	return e.replies.unknown(t.result, *t.sess), nil
}

func (e *Engine) handleReprompt(_ context.Context, t *turn) (string, error) {
	return e.replies.statePrompt(*t.sess), nil
}

// arrivalETA renders the driver arrival delay for the booking reply.
func (e *Engine) arrivalETA() string {
	d := DefaultDelays().DriverArrival
	if e.notifier != nil {
		d = e.notifier.delays.DriverArrival
	}
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	return strings.TrimSuffix(d.Round(time.Minute).String(), "0s")
}
