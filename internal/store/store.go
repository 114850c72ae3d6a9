// Package store provides storage backends for FastCab.
//
// It persists users, conversation sessions, bookings and the inbound message
// dedup log. Backends: in-memory (tests, demos), SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BTreeMap/FastCab/internal/models"
)

// ErrNotFound is returned when a user or booking does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence adapter used by the conversation engine.
type Store interface {
	// SaveUser creates the user or refreshes the display name when one is given.
	SaveUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, phone string) (*models.User, error)

	// GetSession returns the stored session, or a fresh "new" session when none exists.
	GetSession(ctx context.Context, phone string) (models.Session, error)
	SaveSession(ctx context.Context, s models.Session) error
	DeleteSession(ctx context.Context, phone string) error
	// ListIdleSessions returns sessions whose last activity is strictly before the cutoff.
	ListIdleSessions(ctx context.Context, before time.Time) ([]models.Session, error)

	CreateBooking(ctx context.Context, b models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error
	SetBookingRating(ctx context.Context, id string, rating int) error
	SetBookingPayment(ctx context.Context, id string, method models.PaymentMethod) error
	// ListActiveBookings returns bookings whose trip has not finished or been cancelled.
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)

	// RecordInbound stores a provider message id. It returns false when the id
	// was already recorded, meaning the message is a redelivery.
	RecordInbound(ctx context.Context, messageID, phone string) (bool, error)

	Close() error
}

// Compile-time checks that all backends implement Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open returns the backend selected by the options: PostgreSQL or SQLite
// when a DSN is set, in-memory otherwise.
func Open(opts ...Option) (Store, error) {
	cfg := buildOpts(opts)
	switch {
	case cfg.DSN == "":
		return NewInMemoryStore(), nil
	case cfg.Driver == DriverPostgres:
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

func validRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
