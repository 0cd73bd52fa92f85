package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/payment"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewWithDB(db, payment.NewSimulated(), booking.CancelBookerOrAdmin)
	return s, mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var bookingColNames = []string{
	"id", "user_id", "owner_id", "venue_id", "court_id",
	"start_at", "end_at", "amount_cents", "payment_status", "payment_meta",
	"status", "cancelled_by", "cancelled_at", "idempotency_key", "created_at",
	"venue_name", "court_name",
}

func TestGetBookingNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("from booking b").WillReturnError(sql.ErrNoRows)

	_, err := s.GetBooking(context.Background(), "missing")
	if !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestGetBookingScansRow(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	mock.ExpectQuery("from booking b").
		WillReturnRows(sqlmock.NewRows(bookingColNames).AddRow(
			"b1", "u1", "o1", "v1", "c1",
			start, end, int64(1000), "paid", []byte(`{"mode":"simulated"}`),
			"completed", "", nil, "k1", start.Add(-time.Hour),
			"Lakeside", "Court 1",
		))

	got, err := s.GetBooking(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != booking.StatusCompleted {
		t.Fatalf("status from derived column: %s", got.Status)
	}
	if got.VenueName != "Lakeside" || got.CourtName != "Court 1" {
		t.Fatalf("display names missing: %+v", got)
	}
	if got.PaymentMeta["mode"] != "simulated" {
		t.Fatalf("payment meta not decoded: %+v", got.PaymentMeta)
	}
	expectMet(t, mock)
}

func TestCreateBookingIdempotentReplay(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("from booking b").
		WillReturnRows(sqlmock.NewRows(bookingColNames).AddRow(
			"b1", "u1", "o1", "v1", "c1",
			start, end, int64(1000), "paid", nil,
			"booked", "", nil, "k1", start.Add(-time.Hour),
			"Lakeside", "Court 1",
		))
	mock.ExpectRollback()

	actor := auth.Actor{ID: "u1", Role: auth.RoleUser}
	got, err := s.CreateBooking(context.Background(), actor, booking.CreateRequest{
		CourtID: "c1", StartAt: start, EndAt: end, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got.ID != "b1" {
		t.Fatalf("expected committed booking back, got %+v", got)
	}
	expectMet(t, mock)
}

func TestCreateBookingConflict(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from court c join venue v").
		WillReturnRows(sqlmock.NewRows([]string{"price_per_hour", "status", "id", "owner_id", "is_approved", "vname", "cname"}).
			AddRow("10", "active", "v1", "o1", true, "Lakeside", "Court 1"))
	mock.ExpectQuery("from court_availability").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("from court_time_slot").
		WillReturnRows(sqlmock.NewRows([]string{"day_of_week", "start_time", "end_time"}))
	mock.ExpectQuery("from booking where court_id").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	actor := auth.Actor{ID: "u1", Role: auth.RoleUser}
	_, err := s.CreateBooking(context.Background(), actor, booking.CreateRequest{
		CourtID: "c1", StartAt: start, EndAt: end,
	})
	if !errors.Is(err, booking.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	expectMet(t, mock)
}

func TestCreateBookingUnapprovedVenue(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from court c join venue v").
		WillReturnRows(sqlmock.NewRows([]string{"price_per_hour", "status", "id", "owner_id", "is_approved", "vname", "cname"}).
			AddRow("10", "active", "v1", "o1", false, "Lakeside", "Court 1"))
	mock.ExpectRollback()

	actor := auth.Actor{ID: "u1", Role: auth.RoleUser}
	_, err := s.CreateBooking(context.Background(), actor, booking.CreateRequest{
		CourtID: "c1", StartAt: start, EndAt: start.Add(time.Hour),
	})
	if !errors.Is(err, booking.ErrVenueNotApproved) {
		t.Fatalf("expected ErrVenueNotApproved, got %v", err)
	}
	expectMet(t, mock)
}

func TestCancelBookingForbiddenForStranger(t *testing.T) {
	s, mock := newMockStore(t)
	end := time.Now().UTC().Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("from booking where id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status", "payment_status", "amount_cents", "end_at"}).
			AddRow("someone-else", "booked", "paid", int64(1000), end))
	mock.ExpectRollback()

	actor := auth.Actor{ID: "u1", Role: auth.RoleUser}
	_, err := s.CancelBooking(context.Background(), actor, "b1")
	if !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	expectMet(t, mock)
}

func TestCancelBookingAlreadyCancelled(t *testing.T) {
	s, mock := newMockStore(t)
	end := time.Now().UTC().Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("from booking where id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status", "payment_status", "amount_cents", "end_at"}).
			AddRow("u1", "cancelled", "refunded", int64(1000), end))
	mock.ExpectRollback()

	actor := auth.Actor{ID: "u1", Role: auth.RoleUser}
	_, err := s.CancelBooking(context.Background(), actor, "b1")
	if !errors.Is(err, booking.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
	expectMet(t, mock)
}

func TestCompleteExpiredSweep(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("update booking set status='completed'").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b1").AddRow("b2"))
	mock.ExpectExec("insert into booking_history").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into booking_history").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.CompleteExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	expectMet(t, mock)
}

func TestCreateBookingRejectsPastInterval(t *testing.T) {
	s, _ := newMockStore(t)
	past := time.Now().UTC().Add(-time.Hour)
	actor := auth.Actor{ID: "u1", Role: auth.RoleUser}
	_, err := s.CreateBooking(context.Background(), actor, booking.CreateRequest{
		CourtID: "c1", StartAt: past, EndAt: past.Add(30 * time.Minute),
	})
	if !errors.Is(err, booking.ErrPastBooking) {
		t.Fatalf("expected ErrPastBooking, got %v", err)
	}
}
