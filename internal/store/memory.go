package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/FastCab/internal/models"
)

// InMemoryStore keeps everything in process memory. Contents are lost on restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	sessions map[string]models.Session
	bookings map[string]models.Booking
	inbound  map[string]string // message id -> phone
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]models.User),
		sessions: make(map[string]models.Session),
		bookings: make(map[string]models.Booking),
		inbound:  make(map[string]string),
	}
}

func (s *InMemoryStore) SaveUser(_ context.Context, u models.User) error {
	if u.Phone == "" {
		return models.ErrEmptyPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.Phone]
	if !ok {
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		s.users[u.Phone] = u
		return nil
	}
	if u.Name != "" {
		existing.Name = u.Name
		s.users[u.Phone] = existing
	}
	return nil
}

func (s *InMemoryStore) GetUser(_ context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[phone]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", phone, ErrNotFound)
	}
	return &u, nil
}

func (s *InMemoryStore) GetSession(_ context.Context, phone string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return models.NewSession(phone, time.Now().UTC()), nil
	}
	return sess.Clone(), nil
}

func (s *InMemoryStore) SaveSession(_ context.Context, sess models.Session) error {
	if sess.Phone == "" {
		return models.ErrEmptyPhone
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Phone] = sess.Clone()
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
	return nil
}

func (s *InMemoryStore) ListIdleSessions(_ context.Context, before time.Time) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var idle []models.Session
	for _, sess := range s.sessions {
		if sess.LastActivity.Before(before) {
			idle = append(idle, sess.Clone())
		}
	}
	return idle, nil
}

func (s *InMemoryStore) CreateBooking(_ context.Context, b models.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	s.bookings[b.ID] = b
	return nil
}

func (s *InMemoryStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return &b, nil
}

func (s *InMemoryStore) ListActiveBookings(_ context.Context) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []models.Booking
	for _, b := range s.bookings {
		if !b.Status.IsTerminal() {
			active = append(active, b)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active, nil
}

func (s *InMemoryStore) UpdateBookingStatus(_ context.Context, id string, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return models.ErrInvalidStatus
	}
	return s.updateBooking(id, func(b *models.Booking) { b.Status = status })
}

func (s *InMemoryStore) SetBookingRating(_ context.Context, id string, rating int) error {
	if !validRating(rating) {
		return models.ErrInvalidRating
	}
	return s.updateBooking(id, func(b *models.Booking) { b.Rating = rating })
}

func (s *InMemoryStore) SetBookingPayment(_ context.Context, id string, method models.PaymentMethod) error {
	if !models.IsValidPaymentMethod(method) {
		return models.ErrInvalidPayment
	}
	return s.updateBooking(id, func(b *models.Booking) { b.PaymentMethod = method })
}

func (s *InMemoryStore) updateBooking(id string, mutate func(*models.Booking)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	mutate(&b)
	b.UpdatedAt = time.Now().UTC()
	s.bookings[id] = b
	return nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = phone
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
