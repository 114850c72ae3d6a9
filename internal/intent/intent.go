// Package intent classifies inbound WhatsApp text into a single intent for
// the conversation engine.
package intent

import (
	"github.com/BTreeMap/FastCab/internal/models"
)

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	Connect    Intent = "connect"
	Book       Intent = "book"
	SelectRide Intent = "select_ride"
	Track      Intent = "track"
	Cancel     Intent = "cancel"
	Rate       Intent = "rate"
	Pay        Intent = "pay"
	Confirm    Intent = "confirm"
	Decline    Intent = "decline"
	Greet      Intent = "greet"
	Help       Intent = "help"
	Unknown    Intent = "unknown"
)

// Reason explains why a message was classified as Unknown.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnknownLocation  Reason = "unknown_location"
	ReasonSameLocation     Reason = "same_location"
	ReasonNoPendingRide    Reason = "no_pending_ride"
	ReasonInvalidSelection Reason = "invalid_selection"
	ReasonInvalidRating    Reason = "invalid_rating"
	ReasonNoActiveTrip     Reason = "no_active_trip"
	ReasonNothingToPay     Reason = "nothing_to_pay"
)

// Context is the slice of session state the classifier needs.
type Context struct {
	State            models.ConversationState
	HasPendingRide   bool
	HasActiveBooking bool
}

// Result is the classifier output. Only the fields relevant to Intent are set.
type Result struct {
	Intent Intent
	Reason Reason

	Pickup  models.Location // Book
	Dropoff models.Location // Book
	Choice  int             // SelectRide, 1-based
	Rating  int             // Rate
	Payment models.PaymentMethod

	// Unresolved is the location text that failed to resolve (ReasonUnknownLocation).
	Unresolved string
}

func unknown(reason Reason) Result {
	return Result{Intent: Unknown, Reason: reason}
}
