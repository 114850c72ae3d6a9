package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/store"
)

// TripResumer requeues notifications for a stored booking. flow.Notifier
// satisfies it.
type TripResumer interface {
	Resume(b models.Booking, elapsed time.Duration) bool
}

// TripRecovery reschedules the notifications of trips that were in flight
// when the process stopped.
type TripRecovery struct {
	store   store.Store
	resumer TripResumer
	now     func() time.Time
}

var _ Recoverable = (*TripRecovery)(nil)

// NewTripRecovery creates a trip recoverer. A nil now uses time.Now.
func NewTripRecovery(st store.Store, resumer TripResumer, now func() time.Time) *TripRecovery {
	if now == nil {
		now = time.Now
	}
	return &TripRecovery{store: st, resumer: resumer, now: now}
}

// Name implements Recoverable.
func (t *TripRecovery) Name() string {
	return "trips"
}

// RecoverState resumes every active booking. Stages that fell due while the
// process was down fire straight away.
func (t *TripRecovery) RecoverState(ctx context.Context) error {
	bookings, err := t.store.ListActiveBookings(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active bookings: %w", err)
	}

	now := t.now()
	resumed := 0
	for _, b := range bookings {
		elapsed := max(now.Sub(b.UpdatedAt), 0)
		if !t.resumer.Resume(b, elapsed) {
			continue
		}
		resumed++
		slog.Info("TripRecovery.RecoverState: trip resumed", "phone", b.Phone, "booking_id", b.ID,
			"status", b.Status, "elapsed", elapsed)
	}
	slog.Info("TripRecovery.RecoverState: completed", "active", len(bookings), "resumed", resumed)
	return nil
}
