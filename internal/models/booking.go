package models

import "time"

// BookingStatus is the lifecycle status of a booking.
type BookingStatus string

const (
	BookingConfirmed  BookingStatus = "confirmed"
	BookingArrived    BookingStatus = "arrived"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// IsValidBookingStatus checks if the given booking status is known.
func IsValidBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingConfirmed, BookingArrived, BookingInProgress, BookingCompleted, BookingCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further trip progress can happen.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Booking is a confirmed ride request with an assigned driver.
type Booking struct {
	ID            string        `json:"id"`
	Phone         string        `json:"phone"`
	PickupKey     string        `json:"pickup_key"`
	DropoffKey    string        `json:"dropoff_key"`
	RideClassKey  string        `json:"ride_class"`
	DistanceKm    float64       `json:"distance_km"`
	Fare          float64       `json:"fare"`
	DriverID      int           `json:"driver_id"`
	Status        BookingStatus `json:"status"`
	Rating        int           `json:"rating,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate checks the fields required before a booking is persisted.
func (b *Booking) Validate() error {
	if b.ID == "" {
		return ErrEmptyBookingID
	}
	if b.Phone == "" {
		return ErrEmptyPhone
	}
	if !IsValidBookingStatus(b.Status) {
		return ErrInvalidStatus
	}
	return nil
}
