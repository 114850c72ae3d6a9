// Package models defines the core data structures for FastCab.
//
// It includes users, conversation sessions, bookings and the static catalog
// entries (locations, ride classes, drivers) shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for inbound messages
const (
	// MaxMessageLength is the longest inbound body we attempt to classify.
	// It matches the WhatsApp body limit enforced by Twilio.
	MaxMessageLength = 1600
)

// Error variables for better error handling and testability
var (
	ErrEmptyPhone     = errors.New("phone number cannot be empty")
	ErrEmptyBookingID = errors.New("booking id cannot be empty")
	ErrInvalidStatus  = errors.New("invalid booking status")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrInvalidPayment = errors.New("invalid payment method")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrEmptyMessage   = errors.New("message body cannot be empty")
)

// User is a WhatsApp user identified by phone number.
type User struct {
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a static catalog entry for a pickup or dropoff area.
type Location struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	HasCoordinates bool    `json:"has_coordinates"`
}

// RideClass is a tier of service with its own pricing.
type RideClass struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BaseFare    float64 `json:"base_fare"`
	PerKmRate   float64 `json:"per_km_rate"`
}

// Driver is a demo driver from the static roster.
type Driver struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone"`
	VehicleMake  string  `json:"vehicle_make"`
	VehicleModel string  `json:"vehicle_model"`
	PlateNumber  string  `json:"plate_number"`
	Rating       float64 `json:"rating"`
	TotalTrips   int     `json:"total_trips"`
}

// Vehicle returns the make and model as a single label.
func (d Driver) Vehicle() string {
	return d.VehicleMake + " " + d.VehicleModel
}

// PaymentMethod is how a completed trip was settled.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
)

// IsValidPaymentMethod checks if the given payment method is supported.
func IsValidPaymentMethod(pm PaymentMethod) bool {
	switch pm {
	case PaymentCash, PaymentTransfer:
		return true
	default:
		return false
	}
}
