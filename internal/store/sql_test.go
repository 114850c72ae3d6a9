package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/BTreeMap/FastCab/internal/models"
	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T, numbered bool) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newSQLStore(db, "MockStore", numbered), mock
}

func TestRebind(t *testing.T) {
	pg := &sqlStore{numbered: true}
	got := pg.rebind(`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`)
	want := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	lite := &sqlStore{}
	if q := `SELECT 1 WHERE a = ?`; lite.rebind(q) != q {
		t.Errorf("sqlite rebind should be identity")
	}
}

func TestSQLStoreSaveSessionError(t *testing.T) {
	s, mock := newMockStore(t, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnError(errors.New("disk I/O error"))

	sess := models.NewSession("+2348000000000", time.Now())
	err := s.SaveSession(context.Background(), sess)
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStoreGetSessionQueryError(t *testing.T) {
	s, mock := newMockStore(t, true)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE phone = $1")).
		WithArgs("+2348000000000").
		WillReturnError(errors.New("connection reset"))

	if _, err := s.GetSession(context.Background(), "+2348000000000"); err == nil {
		t.Fatal("expected error from GetSession")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStoreGetSessionDecodesJSON(t *testing.T) {
	s, mock := newMockStore(t, false)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"phone", "state", "connected", "pending_json", "trip_json", "last_activity", "created_at", "updated_at"}).
		AddRow("+2348000000000", "selecting_ride", true, `{"pickup_key":"yaba","dropoff_key":"ikeja","distance_km":9.7}`, nil, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE phone = ?")).WillReturnRows(rows)

	sess, err := s.GetSession(context.Background(), "+2348000000000")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Pending == nil || sess.Pending.PickupKey != "yaba" || sess.Pending.DistanceKm != 9.7 {
		t.Errorf("pending = %+v", sess.Pending)
	}
	if sess.Trip != nil {
		t.Errorf("trip = %+v, want nil", sess.Trip)
	}
}

func TestSQLStoreUpdateBookingNotFound(t *testing.T) {
	s, mock := newMockStore(t, true)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("cancelled", sqlmock.AnyArg(), "FCMISSING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateBookingStatus(context.Background(), "FCMISSING", models.BookingCancelled)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStoreCreateBookingError(t *testing.T) {
	s, mock := newMockStore(t, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnError(errors.New("UNIQUE constraint failed: bookings.id"))

	b := models.Booking{ID: "FCDUPE00", Phone: "+2348000000000", Status: models.BookingConfirmed}
	if err := s.CreateBooking(context.Background(), b); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQLStoreCreateBookingValidatesFirst(t *testing.T) {
	s, mock := newMockStore(t, false)
	err := s.CreateBooking(context.Background(), models.Booking{Phone: "+2348000000000", Status: models.BookingConfirmed})
	if !errors.Is(err, models.ErrEmptyBookingID) {
		t.Fatalf("err = %v, want ErrEmptyBookingID", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no SQL should run for invalid booking: %v", err)
	}
}

func TestSQLStoreRecordInboundDuplicate(t *testing.T) {
	s, mock := newMockStore(t, true)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbound_dedup")).
		WithArgs("SM1", "+2348000000000", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	fresh, err := s.RecordInbound(context.Background(), "SM1", "+2348000000000")
	if err != nil {
		t.Fatalf("RecordInbound: %v", err)
	}
	if fresh {
		t.Error("zero rows affected should report a duplicate")
	}
}

func TestSQLStoreListActiveBookings(t *testing.T) {
	s, mock := newMockStore(t, true)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "phone", "pickup", "dropoff", "ride_class", "distance_km", "fare",
		"driver_id", "status", "rating", "payment_method", "created_at", "updated_at"}).
		AddRow("FCABC123", "+2348000000000", "ikoyi", "victoria island", "economy", 3.1, 972.0, 1,
			"arrived", 0, "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ($1, $2, $3)")).
		WithArgs("confirmed", "arrived", "in_progress").
		WillReturnRows(rows)

	got, err := s.ListActiveBookings(context.Background())
	if err != nil {
		t.Fatalf("ListActiveBookings: %v", err)
	}
	if len(got) != 1 || got[0].ID != "FCABC123" || got[0].Status != models.BookingArrived {
		t.Fatalf("bookings = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLStoreListActiveBookingsError(t *testing.T) {
	s, mock := newMockStore(t, false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings")).WillReturnError(errors.New("db down"))
	if _, err := s.ListActiveBookings(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
