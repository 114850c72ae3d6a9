package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FastCab/internal/metrics"
	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/BTreeMap/FastCab/internal/store"
)

// DefaultSessionTTL is how long a session may sit idle before it is reset.
const DefaultSessionTTL = 2 * time.Hour

// Sweeper resets sessions that have been idle longer than the TTL.
type Sweeper struct {
	store store.Store
	locks *KeyedMutex
	ttl   time.Duration
	now   func() time.Time
}

// NewSweeper creates a sweeper sharing the engine's KeyedMutex.
func NewSweeper(st store.Store, locks *KeyedMutex, ttl time.Duration, now func() time.Time) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: st, locks: locks, ttl: ttl, now: now}
}

// Sweep deletes idle sessions, returning them to "new". Sessions whose
// booking is still live are kept.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	idle, err := s.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}

	removed := 0
	for _, candidate := range idle {
		ok, err := s.sweepOne(ctx, candidate.Phone, cutoff)
		if err != nil {
			slog.Error("Sweeper.Sweep: failed to reset session", "phone", candidate.Phone, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		metrics.SessionsSwept.Add(float64(removed))
		slog.Info("Sweeper.Sweep: idle sessions reset", "count", removed, "ttl", s.ttl)
	}
	return removed, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, phone string, cutoff time.Time) (bool, error) {
	unlock := s.locks.Lock(phone)
	defer unlock()

	// Re-read under the lock; the user may have written in since the listing.
	sess, err := s.store.GetSession(ctx, phone)
	if err != nil {
		return false, err
	}
	if !sess.LastActivity.Before(cutoff) {
		return false, nil
	}
	live, err := s.hasLiveTrip(ctx, sess)
	if err != nil {
		return false, err
	}
	if live {
		return false, nil
	}
	return true, s.store.DeleteSession(ctx, phone)
}

func (s *Sweeper) hasLiveTrip(ctx context.Context, sess models.Session) (bool, error) {
	if sess.Trip == nil {
		return false, nil
	}
	b, err := s.store.GetBooking(ctx, sess.Trip.BookingID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !b.Status.IsTerminal(), nil
}
