package booking

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quickcourt.org/internal/payment"
)

func TestOverlapsHalfOpen(t *testing.T) {
	s1 := at(1, 14, 0)
	e1 := at(1, 15, 0)

	cases := []struct {
		name   string
		start  time.Time
		end    time.Time
		expect bool
	}{
		{"identical", s1, e1, true},
		{"contained", at(1, 14, 15), at(1, 14, 45), true},
		{"straddles start", at(1, 13, 30), at(1, 14, 30), true},
		{"straddles end", at(1, 14, 30), at(1, 15, 30), true},
		{"adjacent before", at(1, 13, 0), at(1, 14, 0), false},
		{"adjacent after", at(1, 15, 0), at(1, 16, 0), false},
		{"disjoint", at(1, 16, 0), at(1, 17, 0), false},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.start, tc.end, s1, e1); got != tc.expect {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.expect, got)
		}
	}
}

func TestWithinTemplate(t *testing.T) {
	slots := []TimeSlot{
		{CourtID: "c1", DayOfWeek: time.Saturday, Start: "07:00", End: "22:00"},
		{CourtID: "c1", DayOfWeek: time.Sunday, Start: "09:00", End: "12:00"},
	}

	// 2030-06-01 is a Saturday.
	if !withinTemplate(slots, at(1, 9, 0), at(1, 10, 0)) {
		t.Fatal("window inside Saturday hours should fit")
	}
	if withinTemplate(slots, at(1, 6, 0), at(1, 8, 0)) {
		t.Fatal("window starting before opening should not fit")
	}
	if withinTemplate(slots, at(1, 21, 0), at(1, 23, 0)) {
		t.Fatal("window past closing should not fit")
	}
	// Sunday has narrower hours.
	if withinTemplate(slots, at(2, 13, 0), at(2, 14, 0)) {
		t.Fatal("Sunday afternoon should not fit")
	}
	// Monday has no slot at all.
	if withinTemplate(slots, at(3, 10, 0), at(3, 11, 0)) {
		t.Fatal("day without slots should not fit")
	}
	// No template means always open.
	if !withinTemplate(nil, at(3, 3, 0), at(3, 4, 0)) {
		t.Fatal("absent template implies always-open")
	}
}

func TestWithinTemplateMidnightClose(t *testing.T) {
	slots := []TimeSlot{{CourtID: "c1", DayOfWeek: time.Saturday, Start: "18:00", End: "24:00"}}

	if !withinTemplate(slots, at(1, 22, 0), at(2, 0, 0)) {
		t.Fatal("window ending exactly at midnight belongs to the starting day")
	}
	if withinTemplate(slots, at(1, 23, 0), at(2, 1, 0)) {
		t.Fatal("window crossing past midnight should not fit")
	}
}

func TestBlockedWindowRejectsBooking(t *testing.T) {
	s := NewInMemory(payment.NewSimulated(), CancelBookerOrAdmin)
	ctx := context.Background()

	v, _ := s.CreateVenue(ctx, owner, VenueRequest{Name: "Arena"})
	if _, err := s.SetVenueApproval(ctx, v.ID, admin.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	c, _ := s.AddCourt(ctx, owner, CourtRequest{VenueID: v.ID, Name: "Court 1", PricePerHour: decimal.NewFromInt(8)})

	if _, err := s.AddBlockedWindow(ctx, owner, BlockedWindow{
		CourtID: c.ID,
		StartAt: at(1, 10, 0),
		EndAt:   at(1, 12, 0),
		Reason:  "resurfacing",
	}); err != nil {
		t.Fatalf("block: %v", err)
	}

	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 11, 0), EndAt: at(1, 12, 0)}); err != ErrConflict {
		t.Fatalf("blocked window: expected ErrConflict, got %v", err)
	}
	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 12, 0), EndAt: at(1, 13, 0)}); err != nil {
		t.Fatalf("window after block should succeed: %v", err)
	}
}

func TestTemplateEnforcedOnBooking(t *testing.T) {
	s := NewInMemory(payment.NewSimulated(), CancelBookerOrAdmin)
	ctx := context.Background()

	v, _ := s.CreateVenue(ctx, owner, VenueRequest{Name: "Arena"})
	if _, err := s.SetVenueApproval(ctx, v.ID, admin.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	c, _ := s.AddCourt(ctx, owner, CourtRequest{VenueID: v.ID, Name: "Court 1", PricePerHour: decimal.NewFromInt(8)})
	if err := s.AddTimeSlot(ctx, owner, TimeSlot{CourtID: c.ID, DayOfWeek: time.Saturday, Start: "08:00", End: "20:00"}); err != nil {
		t.Fatalf("slot: %v", err)
	}

	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 6, 0), EndAt: at(1, 7, 0)}); err != ErrConflict {
		t.Fatalf("outside operating hours: expected ErrConflict, got %v", err)
	}
	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 9, 0), EndAt: at(1, 10, 0)}); err != nil {
		t.Fatalf("inside operating hours: %v", err)
	}
}

func TestQuoteAmountCents(t *testing.T) {
	cases := []struct {
		price   string
		minutes int
		expect  int64
	}{
		{"10", 60, 1000},
		{"10", 90, 1500},
		{"12.50", 30, 625},
		{"9.99", 60, 999},
		{"0", 60, 0},
	}
	for _, tc := range cases {
		price := decimal.RequireFromString(tc.price)
		start := at(1, 10, 0)
		got := QuoteAmountCents(price, start, start.Add(time.Duration(tc.minutes)*time.Minute))
		if got != tc.expect {
			t.Errorf("%s/hr for %dmin: expected %d, got %d", tc.price, tc.minutes, tc.expect, got)
		}
	}
}
