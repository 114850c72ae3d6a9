package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/BTreeMap/FastCab/internal/models"
)

// Reply copy for the WhatsApp conversation. WhatsApp renders *bold*.

const (
	replyTooLong       = "😅 That message is too long for me. Please send a shorter one, e.g. *ride from Ikoyi to VI*."
	replyUnavailable   = "⚠️ Fast Cab is temporarily unavailable. Please try again in a moment, or send *menu* to start over."
	replyRateLimited   = "⏳ Too many requests. Please wait a minute and try again."
	replyInvalidSender = "🤔 We could not read your WhatsApp number. Please message Fast Cab from a personal WhatsApp account."
)

// ReplyUnavailable is sent when a downstream dependency fails mid-conversation.
func ReplyUnavailable() string { return replyUnavailable }

// ReplyRateLimited is sent when a phone exceeds the inbound message budget.
func ReplyRateLimited() string { return replyRateLimited }

// ReplyInvalidSender is sent when the sender address is not a phone number.
func ReplyInvalidSender() string { return replyInvalidSender }

type replies struct {
	catalog  *catalog.Catalog
	joinCode string
}

func (r replies) setup() string {
	return "👋 Welcome to *Fast Cab*, Lagos' fastest demo ride service!\n\n" +
		"To get started, connect to our WhatsApp sandbox by sending:\n" +
		"*join " + r.joinCode + "*"
}

func (r replies) connected(already bool) string {
	head := "✅ You're connected to *Fast Cab*!"
	if already {
		head = "✅ You're already connected to *Fast Cab*."
	}
	return head + "\n\n" + r.ridePrompt()
}

func (r replies) ridePrompt() string {
	names := make([]string, 0, len(r.catalog.Locations()))
	for _, loc := range r.catalog.Locations() {
		names = append(names, loc.Name)
	}
	return "🚖 Where would you like to go?\n" +
		"Send something like *ride from Ikoyi to VI*.\n\n" +
		"📍 Areas we cover: " + strings.Join(names, ", ") + "\n" +
		"Send *help* for all commands."
}

func (r replies) quote(pickup, dropoff models.Location, distanceKm float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📍 *%s* → *%s*\n📏 Distance: %.1f km\n\nChoose your ride:\n", pickup.Name, dropoff.Name, distanceKm)
	for i, rc := range r.catalog.RideClasses() {
		fmt.Fprintf(&b, "\n*%d.* %s: %s\n   %s", i+1, rc.Name, formatNaira(catalog.Fare(rc, distanceKm)), rc.Description)
	}
	b.WriteString("\n\nReply with the number of your choice.")
	return b.String()
}

func (r replies) booked(b models.Booking, d models.Driver, rc models.RideClass, pickup, dropoff models.Location, eta string) string {
	return fmt.Sprintf("🎉 *Ride booked!*\n\n"+
		"🆔 Booking: *%s*\n"+
		"🚗 %s\n"+
		"📍 %s → %s\n"+
		"💰 Fare: %s\n\n"+
		"👨‍✈️ Driver: *%s* (⭐ %.1f, %d trips)\n"+
		"🚙 %s · %s\n"+
		"📞 %s\n\n"+
		"⏱️ Arriving in about %s.\n"+
		"Send *track* for updates or *cancel* to cancel.",
		b.ID, rc.Name, pickup.Name, dropoff.Name, formatNaira(b.Fare),
		d.Name, d.Rating, d.TotalTrips, d.Vehicle(), d.PlateNumber, d.Phone, eta)
}

func (r replies) track(b models.Booking, d models.Driver) string {
	var status string
	switch b.Status {
	case models.BookingArrived:
		status = "✅ Your driver has arrived at the pickup point."
	case models.BookingInProgress:
		status = "🛣️ Your trip is in progress."
	default:
		status = "🚗 Your driver is on the way."
	}
	return fmt.Sprintf("📍 *Trip %s*\n%s\n\n👨‍✈️ %s · %s · %s\n💰 Fare: %s",
		b.ID, status, d.Name, d.Vehicle(), d.PlateNumber, formatNaira(b.Fare))
}

func (r replies) cancelPrompt(bookingID string) string {
	return fmt.Sprintf("❓ Are you sure you want to cancel booking *%s*?\nReply *YES* to cancel or *NO* to keep your ride.", bookingID)
}

func (r replies) cancelled(bookingID string) string {
	return fmt.Sprintf("❌ Booking *%s* has been cancelled.\n\n%s", bookingID, r.ridePrompt())
}

func (r replies) cancelAborted() string {
	return "👍 Your ride is still on. Send *track* for updates or *cancel* to cancel."
}

func (r replies) ratingPrompt() string {
	return "⭐ How was your trip? Reply with a rating from *1* to *5*.\nOr pay right away with *cash* or *transfer*."
}

func (r replies) paymentPrompt(fare float64) string {
	return fmt.Sprintf("💳 Your fare is %s. Reply *cash* or *transfer* to pay.", formatNaira(fare))
}

func (r replies) rated(rating int, fare float64) string {
	return fmt.Sprintf("🙏 Thanks for rating your driver %s!\n\n%s", strings.Repeat("⭐", rating), r.paymentPrompt(fare))
}

func (r replies) paid(method models.PaymentMethod, fare float64) string {
	return fmt.Sprintf("✅ Payment of %s received by %s. Thank you for riding with *Fast Cab*!\n\n%s",
		formatNaira(fare), method, r.ridePrompt())
}

func (r replies) help() string {
	return "ℹ️ *Fast Cab help*\n\n" +
		"• *ride from Ikoyi to VI*: get a quote\n" +
		"• *1*, *2*, *3*: choose a ride class\n" +
		"• *track*: see where your driver is\n" +
		"• *cancel*: cancel your current ride\n" +
		"• *1*-*5*: rate a finished trip\n" +
		"• *cash* / *transfer*: pay for a finished trip\n" +
		"• *menu*: main menu"
}

func (r replies) tripArrived(d models.Driver) string {
	return fmt.Sprintf("🚗 Your driver *%s* has arrived in a %s (%s). Please head to the pickup point.",
		d.Name, d.Vehicle(), d.PlateNumber)
}

func (r replies) tripStarted(dropoff models.Location) string {
	return fmt.Sprintf("🛣️ Your trip has started. Heading to *%s*. Enjoy the ride!", dropoff.Name)
}

func (r replies) tripCompleted(b models.Booking, dropoff models.Location) string {
	return fmt.Sprintf("🏁 You've arrived at *%s*! Trip *%s* is complete.\n💰 Fare: %s\n\n%s",
		dropoff.Name, b.ID, formatNaira(b.Fare), r.ratingPrompt())
}

// statePrompt re-emits what the user is expected to send in the given state.
func (r replies) statePrompt(sess models.Session) string {
	switch sess.State {
	case models.StateNew:
		return r.setup()
	case models.StateSelectingRide:
		if sess.Pending != nil {
			pickup, _ := r.catalog.Location(sess.Pending.PickupKey)
			dropoff, _ := r.catalog.Location(sess.Pending.DropoffKey)
			return r.quote(pickup, dropoff, sess.Pending.DistanceKm)
		}
		return r.ridePrompt()
	case models.StateTripConfirmed:
		return r.cancelAborted()
	case models.StateCancelConfirm:
		if sess.Trip != nil {
			return r.cancelPrompt(sess.Trip.BookingID)
		}
		return r.ridePrompt()
	case models.StateAwaitingRating:
		return r.ratingPrompt()
	case models.StateAwaitingPayment:
		fare := 0.0
		if sess.Trip != nil {
			fare = sess.Trip.Fare
		}
		return r.paymentPrompt(fare)
	default:
		return r.ridePrompt()
	}
}

func (r replies) unknown(res intent.Result, sess models.Session) string {
	switch res.Reason {
	case intent.ReasonUnknownLocation:
		return fmt.Sprintf("🤔 I don't know *%s* yet.\n\n%s", res.Unresolved, r.ridePrompt())
	case intent.ReasonSameLocation:
		return "🤔 Pickup and destination are the same place. Please choose two different areas."
	case intent.ReasonNoPendingRide:
		return "🤔 You have no pending booking to choose a ride for.\n\n" + r.ridePrompt()
	case intent.ReasonInvalidSelection:
		return fmt.Sprintf("🤔 Please reply with a number from 1 to %d.", len(r.catalog.RideClasses()))
	case intent.ReasonInvalidRating:
		return "🤔 Please rate your trip with a number from *1* to *5*."
	case intent.ReasonNoActiveTrip:
		return "🤔 You don't have an active trip right now.\n\n" + r.ridePrompt()
	case intent.ReasonNothingToPay:
		return "🤔 There's nothing to pay for right now."
	default:
		return "🤔 Sorry, I didn't understand that.\n\n" + r.statePrompt(sess)
	}
}

// formatNaira renders a fare as whole naira with thousands separators.
func formatNaira(amount float64) string {
	n := int64(amount + 0.5)
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return "₦" + s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return "₦" + b.String()
}
