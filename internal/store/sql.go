package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/FastCab/internal/models"
)

// connectTimeout bounds the initial ping and migration run.
const connectTimeout = 15 * time.Second

// sqlStore implements Store on database/sql. SQLiteStore and PostgresStore
// embed it and differ only in connection setup, migrations and placeholders.
type sqlStore struct {
	db       *sql.DB
	name     string // log prefix, e.g. "SQLiteStore"
	numbered bool   // use $1, $2 ... placeholders
}

func newSQLStore(db *sql.DB, name string, numbered bool) *sqlStore {
	return &sqlStore{db: db, name: name, numbered: numbered}
}

// openMigrated opens driver/dsn, applies tune, checks the connection and
// runs the schema. The returned db is closed on any failure.
func openMigrated(driver, dsn, schema, name string, tune func(*sql.DB)) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		slog.Error(name+" open failed", "error", err)
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if tune != nil {
		tune(db)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		slog.Error(name+" ping failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		slog.Error(name+" migrations failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug(name+" migrations applied")
	return db, nil
}

// rebind rewrites ? placeholders into $n form for PostgreSQL.
func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) SaveUser(ctx context.Context, u models.User) error {
	if u.Phone == "" {
		return models.ErrEmptyPhone
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := s.rebind(`
		INSERT INTO users (phone, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END`)
	if _, err := s.db.ExecContext(ctx, query, u.Phone, u.Name, u.CreatedAt.UTC()); err != nil {
		slog.Error(s.name+" SaveUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to save user %s: %w", u.Phone, err)
	}
	return nil
}

func (s *sqlStore) GetUser(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT phone, name, created_at FROM users WHERE phone = ?`), phone).
		Scan(&u.Phone, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", phone, ErrNotFound)
	}
	if err != nil {
		slog.Error(s.name+" GetUser failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get user %s: %w", phone, err)
	}
	return &u, nil
}

func (s *sqlStore) GetSession(ctx context.Context, phone string) (models.Session, error) {
	query := s.rebind(`
		SELECT phone, state, connected, pending_json, trip_json, last_activity, created_at, updated_at
		FROM sessions WHERE phone = ?`)
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewSession(phone, time.Now().UTC()), nil
	}
	if err != nil {
		slog.Error(s.name+" GetSession failed", "error", err, "phone", phone)
		return models.Session{}, fmt.Errorf("failed to get session %s: %w", phone, err)
	}
	return sess, nil
}

func (s *sqlStore) SaveSession(ctx context.Context, sess models.Session) error {
	if sess.Phone == "" {
		return models.ErrEmptyPhone
	}
	pending, err := marshalNullable(sess.Pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending ride: %w", err)
	}
	trip, err := marshalNullable(sess.Trip)
	if err != nil {
		return fmt.Errorf("failed to encode active trip: %w", err)
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	query := s.rebind(`
		INSERT INTO sessions (phone, state, connected, pending_json, trip_json, last_activity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			state = excluded.state,
			connected = excluded.connected,
			pending_json = excluded.pending_json,
			trip_json = excluded.trip_json,
			last_activity = excluded.last_activity,
			updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, query, sess.Phone, string(sess.State), sess.Connected, pending, trip,
		sess.LastActivity.UTC(), sess.CreatedAt.UTC(), now)
	if err != nil {
		slog.Error(s.name+" SaveSession failed", "error", err, "phone", sess.Phone, "state", sess.State)
		return fmt.Errorf("failed to save session %s: %w", sess.Phone, err)
	}
	slog.Debug(s.name+" SaveSession succeeded", "phone", sess.Phone, "state", sess.State)
	return nil
}

func (s *sqlStore) DeleteSession(ctx context.Context, phone string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE phone = ?`), phone); err != nil {
		slog.Error(s.name+" DeleteSession failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete session %s: %w", phone, err)
	}
	return nil
}

func (s *sqlStore) ListIdleSessions(ctx context.Context, before time.Time) ([]models.Session, error) {
	query := s.rebind(`
		SELECT phone, state, connected, pending_json, trip_json, last_activity, created_at, updated_at
		FROM sessions WHERE last_activity < ?`)
	rows, err := s.db.QueryContext(ctx, query, before.UTC())
	if err != nil {
		slog.Error(s.name+" ListIdleSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

func (s *sqlStore) CreateBooking(ctx context.Context, b models.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	query := s.rebind(`
		INSERT INTO bookings (id, phone, pickup, dropoff, ride_class, distance_km, fare, driver_id,
			status, rating, payment_method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, b.ID, b.Phone, b.PickupKey, b.DropoffKey, b.RideClassKey,
		b.DistanceKm, b.Fare, b.DriverID, string(b.Status), b.Rating, string(b.PaymentMethod),
		b.CreatedAt.UTC(), now)
	if err != nil {
		slog.Error(s.name+" CreateBooking failed", "error", err, "booking_id", b.ID, "phone", b.Phone)
		return fmt.Errorf("failed to create booking %s: %w", b.ID, err)
	}
	slog.Debug(s.name+" CreateBooking succeeded", "booking_id", b.ID, "phone", b.Phone)
	return nil
}

const bookingColumns = `id, phone, pickup, dropoff, ride_class, distance_km, fare, driver_id,
			status, rating, payment_method, created_at, updated_at`

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b       models.Booking
		status  string
		payment string
	)
	err := row.Scan(&b.ID, &b.Phone, &b.PickupKey, &b.DropoffKey, &b.RideClassKey, &b.DistanceKm,
		&b.Fare, &b.DriverID, &status, &b.Rating, &payment, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return models.Booking{}, err
	}
	b.Status = models.BookingStatus(status)
	b.PaymentMethod = models.PaymentMethod(payment)
	return b, nil
}

func (s *sqlStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := s.rebind(`SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`)
	b, err := scanBooking(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		slog.Error(s.name+" GetBooking failed", "error", err, "booking_id", id)
		return nil, fmt.Errorf("failed to get booking %s: %w", id, err)
	}
	return &b, nil
}

func (s *sqlStore) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	query := s.rebind(`SELECT ` + bookingColumns + ` FROM bookings
		WHERE status IN (?, ?, ?) ORDER BY created_at`)
	rows, err := s.db.QueryContext(ctx, query, string(models.BookingConfirmed),
		string(models.BookingArrived), string(models.BookingInProgress))
	if err != nil {
		slog.Error(s.name+" ListActiveBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query active bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

func (s *sqlStore) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return models.ErrInvalidStatus
	}
	return s.updateBooking(ctx, id, "status", string(status))
}

func (s *sqlStore) SetBookingRating(ctx context.Context, id string, rating int) error {
	if !validRating(rating) {
		return models.ErrInvalidRating
	}
	return s.updateBooking(ctx, id, "rating", rating)
}

func (s *sqlStore) SetBookingPayment(ctx context.Context, id string, method models.PaymentMethod) error {
	if !models.IsValidPaymentMethod(method) {
		return models.ErrInvalidPayment
	}
	return s.updateBooking(ctx, id, "payment_method", string(method))
}

// updateBooking sets one mutable column. column is always a literal from this file.
func (s *sqlStore) updateBooking(ctx context.Context, id, column string, value interface{}) error {
	query := s.rebind(`UPDATE bookings SET ` + column + ` = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		slog.Error(s.name+" update booking failed", "error", err, "booking_id", id, "column", column)
		return fmt.Errorf("failed to update booking %s %s: %w", id, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected for booking %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	query := s.rebind(`
		INSERT INTO inbound_dedup (message_id, phone, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query, messageID, phone, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close "+s.name+" database", "error", err)
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		sess    models.Session
		state   string
		pending sql.NullString
		trip    sql.NullString
	)
	err := row.Scan(&sess.Phone, &state, &sess.Connected, &pending, &trip,
		&sess.LastActivity, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return models.Session{}, err
	}
	sess.State = models.ConversationState(state)
	if pending.Valid && pending.String != "" {
		sess.Pending = &models.PendingRide{}
		if err := json.Unmarshal([]byte(pending.String), sess.Pending); err != nil {
			return models.Session{}, fmt.Errorf("decode pending ride: %w", err)
		}
	}
	if trip.Valid && trip.String != "" {
		sess.Trip = &models.ActiveTrip{}
		if err := json.Unmarshal([]byte(trip.String), sess.Trip); err != nil {
			return models.Session{}, fmt.Errorf("decode active trip: %w", err)
		}
	}
	return sess, nil
}

// marshalNullable encodes v as JSON, or returns nil for a nil pointer so the
// column is stored as NULL.
func marshalNullable[T any](v *T) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
