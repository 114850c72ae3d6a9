// Package models defines conversation session structures for FastCab.
package models

import "time"

// ConversationState is the step a user is at in the booking flow.
type ConversationState string

const (
	StateNew                 ConversationState = "new"
	StateConnectedIdle       ConversationState = "connected_idle"
	StateAwaitingDestination ConversationState = "awaiting_destination"
	StateSelectingRide       ConversationState = "selecting_ride"
	StateTripConfirmed       ConversationState = "trip_confirmed"
	StateCancelConfirm       ConversationState = "cancel_confirm"
	StateAwaitingRating      ConversationState = "awaiting_rating"
	StateAwaitingPayment     ConversationState = "awaiting_payment"
)

// IsValidConversationState checks if the given state is known.
func IsValidConversationState(s ConversationState) bool {
	switch s {
	case StateNew, StateConnectedIdle, StateAwaitingDestination, StateSelectingRide,
		StateTripConfirmed, StateCancelConfirm, StateAwaitingRating, StateAwaitingPayment:
		return true
	default:
		return false
	}
}

// PendingRide is a quoted but not yet selected ride request.
type PendingRide struct {
	PickupKey  string  `json:"pickup_key"`
	DropoffKey string  `json:"dropoff_key"`
	DistanceKm float64 `json:"distance_km"`
}

// ActiveTrip is the session's view of the booking in progress.
type ActiveTrip struct {
	BookingID    string    `json:"booking_id"`
	DriverID     int       `json:"driver_id"`
	DriverName   string    `json:"driver_name"`
	Fare         float64   `json:"fare"`
	RideClassKey string    `json:"ride_class"`
	StartedAt    time.Time `json:"started_at"`
}

// Session is the per-user conversation record.
type Session struct {
	Phone        string            `json:"phone"`
	State        ConversationState `json:"state"`
	Connected    bool              `json:"connected"`
	Pending      *PendingRide      `json:"pending,omitempty"`
	Trip         *ActiveTrip       `json:"trip,omitempty"`
	LastActivity time.Time         `json:"last_activity"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewSession returns the default session for a phone that has never written in.
func NewSession(phone string, now time.Time) Session {
	return Session{
		Phone:        phone,
		State:        StateNew,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored data.
func (s Session) Clone() Session {
	c := s
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	if s.Trip != nil {
		t := *s.Trip
		c.Trip = &t
	}
	return c
}

// ResetToIdle clears any pending request or trip and returns to connected_idle.
func (s *Session) ResetToIdle() {
	s.State = StateConnectedIdle
	s.Pending = nil
	s.Trip = nil
}
