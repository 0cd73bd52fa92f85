package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/payment"
)

var (
	owner = auth.Actor{ID: "owner-1", Role: auth.RoleOwner}
	admin = auth.Actor{ID: "admin-1", Role: auth.RoleAdmin}
	user  = auth.Actor{ID: "user-1", Role: auth.RoleUser}
)

// fixture builds an engine with one approved venue and one active court
// priced at 10.00 per hour.
func fixture(t *testing.T, policy CancelPolicy) (*InMemory, Venue, Court) {
	t.Helper()
	s := NewInMemory(payment.NewSimulated(), policy)
	ctx := context.Background()

	v, err := s.CreateVenue(ctx, owner, VenueRequest{Name: "Riverside Arena"})
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}
	if v.IsApproved {
		t.Fatal("new venue must start unapproved")
	}
	if _, err := s.SetVenueApproval(ctx, v.ID, admin.ID, true); err != nil {
		t.Fatalf("approve venue: %v", err)
	}
	c, err := s.AddCourt(ctx, owner, CourtRequest{
		VenueID:      v.ID,
		Name:         "Court 1",
		Sport:        "Badminton",
		PricePerHour: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("add court: %v", err)
	}
	return s, v, c
}

func at(day int, hour, min int) time.Time {
	return time.Date(2030, time.June, day, hour, min, 0, 0, time.UTC)
}

func TestCreateBookingSuccess(t *testing.T) {
	s, v, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if b.Status != StatusBooked {
		t.Fatalf("expected booked, got %s", b.Status)
	}
	if b.AmountCents != 1000 {
		t.Fatalf("expected 1000 cents for one hour at 10.00, got %d", b.AmountCents)
	}
	if b.PaymentStatus != payment.StatusPaid {
		t.Fatalf("expected simulated settlement paid, got %s", b.PaymentStatus)
	}
	if b.OwnerID != v.OwnerID {
		t.Fatalf("owner not denormalized: %q", b.OwnerID)
	}

	hist, err := s.History(ctx, b.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Action != HistoryCreated {
		t.Fatalf("expected single created entry, got %#v", hist)
	}
}

func TestOverlapRejectedAdjacentAccepted(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	// [14:30, 15:30) overlaps [14:00, 15:00).
	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 30), EndAt: at(1, 15, 30)}); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// [15:00, 16:00) is adjacent and must succeed.
	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 15, 0), EndAt: at(1, 16, 0)}); err != nil {
		t.Fatalf("adjacent booking should succeed: %v", err)
	}
}

func TestCancelledBookingFreesInterval(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CancelBooking(ctx, user, b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)}); err != nil {
		t.Fatalf("rebooking a cancelled interval should succeed: %v", err)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 15, 0), EndAt: at(1, 14, 0)}); err != ErrInvalidInterval {
		t.Fatalf("inverted interval: expected ErrInvalidInterval, got %v", err)
	}

	past := time.Date(2000, time.January, 1, 10, 0, 0, 0, time.UTC)
	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: past, EndAt: past.Add(time.Hour)}); err != ErrPastBooking {
		t.Fatalf("past interval: expected ErrPastBooking, got %v", err)
	}

	banned := auth.Actor{ID: "user-2", Role: auth.RoleUser, Banned: true}
	if _, err := s.CreateBooking(ctx, banned, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)}); err != ErrBannedActor {
		t.Fatalf("banned actor: expected ErrBannedActor, got %v", err)
	}

	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: "missing", StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)}); err != ErrCourtNotFound {
		t.Fatalf("missing court: expected ErrCourtNotFound, got %v", err)
	}
}

func TestUnapprovedVenueRejectsBookings(t *testing.T) {
	s := NewInMemory(payment.NewSimulated(), CancelBookerOrAdmin)
	ctx := context.Background()

	v, _ := s.CreateVenue(ctx, owner, VenueRequest{Name: "Pending Park"})
	c, _ := s.AddCourt(ctx, owner, CourtRequest{VenueID: v.ID, Name: "Court 1", PricePerHour: decimal.NewFromInt(5)})

	if _, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 9, 0), EndAt: at(1, 10, 0)}); err != ErrVenueNotApproved {
		t.Fatalf("expected ErrVenueNotApproved, got %v", err)
	}
}

func TestInactiveCourt(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	s.mu.Lock()
	s.courts[c.ID].Status = CourtMaintenance
	s.mu.Unlock()

	if _, err := s.IsAvailable(ctx, c.ID, at(1, 14, 0), at(1, 15, 0)); err != ErrCourtInactive {
		t.Fatalf("expected ErrCourtInactive, got %v", err)
	}
}

func TestCancelIdempotentInEffect(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b, _ := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})
	first, err := s.CancelBooking(ctx, user, b.ID)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if first.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", first.Status)
	}
	if first.PaymentStatus != payment.StatusRefunded {
		t.Fatalf("expected refund on cancel, got %s", first.PaymentStatus)
	}

	if _, err := s.CancelBooking(ctx, user, b.ID); err != ErrAlreadyCancelled {
		t.Fatalf("second cancel: expected ErrAlreadyCancelled, got %v", err)
	}

	hist, _ := s.History(ctx, b.ID)
	if len(hist) != 2 {
		t.Fatalf("second cancel must not append history, got %d entries", len(hist))
	}
}

func TestCancelPolicies(t *testing.T) {
	other := auth.Actor{ID: "user-9", Role: auth.RoleUser}

	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()
	b, _ := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})

	if _, err := s.CancelBooking(ctx, other, b.ID); err != ErrForbidden {
		t.Fatalf("stranger cancel under booker-or-admin: expected ErrForbidden, got %v", err)
	}
	if _, err := s.CancelBooking(ctx, admin, b.ID); err != nil {
		t.Fatalf("admin cancel should succeed: %v", err)
	}

	s2, _, c2 := fixture(t, CancelAnyActor)
	b2, _ := s2.CreateBooking(ctx, user, CreateRequest{CourtID: c2.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})
	if _, err := s2.CancelBooking(ctx, other, b2.ID); err != nil {
		t.Fatalf("any-actor policy should allow stranger cancel: %v", err)
	}
}

func TestCancelPastBooking(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b, _ := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})

	s.SetNow(func() time.Time { return at(2, 0, 0) })
	if _, err := s.CancelBooking(ctx, user, b.ID); err != ErrPastBooking {
		t.Fatalf("expected ErrPastBooking, got %v", err)
	}
}

func TestEffectiveStatusDerivedOnRead(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b, _ := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})

	// Move the clock past endAt without running the sweep.
	s.SetNow(func() time.Time { return at(1, 16, 0) })

	got, err := s.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected derived completed, got %s", got.Status)
	}

	// Persisted row is still booked until the sweep materializes it.
	s.mu.RLock()
	persisted := s.bookings[b.ID].Status
	s.mu.RUnlock()
	if persisted != StatusBooked {
		t.Fatalf("expected persisted booked, got %s", persisted)
	}
}

func TestCompleteExpiredSweep(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b, _ := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})
	s.SetNow(func() time.Time { return at(1, 16, 0) })

	n, err := s.CompleteExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completion, got %d", n)
	}

	// Idempotent: a second run changes nothing.
	n, err = s.CompleteExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 on rerun, got %d", n)
	}

	hist, _ := s.History(ctx, b.ID)
	if len(hist) != 2 || hist[1].Action != HistoryCompleted {
		t.Fatalf("expected created+completed history, got %#v", hist)
	}
}

func TestIdempotencyKeyReplay(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	req := CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0), IdempotencyKey: "retry-1"}
	b1, err := s.CreateBooking(ctx, user, req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	b2, err := s.CreateBooking(ctx, user, req)
	if err != nil {
		t.Fatalf("replay must succeed, got %v", err)
	}
	if b1.ID != b2.ID {
		t.Fatalf("replay returned a different booking: %s vs %s", b1.ID, b2.ID)
	}
}

func TestConcurrentSameIntervalOneWins(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 32
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 14, 0), EndAt: at(1, 15, 0)})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch err {
		case nil:
			ok++
		case ErrConflict:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("exactly one concurrent request must win, got %d", ok)
	}
}

func TestNoOverlapInvariantAcrossBookings(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	// Fire a batch of random-ish overlapping requests and verify the
	// committed set is pairwise non-overlapping.
	var wg sync.WaitGroup
	for h := 8; h < 20; h++ {
		for _, d := range []int{30, 60, 90} {
			wg.Add(1)
			go func(h, d int) {
				defer wg.Done()
				start := at(1, h, 0)
				_, _ = s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: start, EndAt: start.Add(time.Duration(d) * time.Minute)})
			}(h, d)
		}
	}
	wg.Wait()

	all, err := s.ListBookings(ctx, ListFilter{Status: StatusBooked})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if Overlaps(all[i].StartAt, all[i].EndAt, all[j].StartAt, all[j].EndAt) {
				t.Fatalf("overlap committed: %v and %v", all[i], all[j])
			}
		}
	}
}

func TestListBookingsFilterAndOrder(t *testing.T) {
	s, _, c := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	b1, _ := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 9, 0), EndAt: at(1, 10, 0)})
	other := auth.Actor{ID: "user-2", Role: auth.RoleUser}
	b2, _ := s.CreateBooking(ctx, other, CreateRequest{CourtID: c.ID, StartAt: at(2, 9, 0), EndAt: at(2, 10, 0)})

	mine, err := s.ListBookings(ctx, ListFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != b1.ID {
		t.Fatalf("user filter wrong: %#v", mine)
	}
	if mine[0].VenueName == "" || mine[0].CourtName == "" {
		t.Fatalf("display fields missing: %#v", mine[0])
	}

	all, _ := s.ListBookings(ctx, ListFilter{})
	if len(all) != 2 || all[0].ID != b2.ID {
		t.Fatalf("expected start_at descending order, got %#v", all)
	}
}

func TestVenueListingOrder(t *testing.T) {
	s := NewInMemory(payment.NewSimulated(), CancelBookerOrAdmin)
	ctx := context.Background()

	base := at(1, 0, 0)
	tick := 0
	s.SetNow(func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) })

	v1, _ := s.CreateVenue(ctx, owner, VenueRequest{Name: "First"})
	v2, _ := s.CreateVenue(ctx, owner, VenueRequest{Name: "Second"})

	approved, _ := s.ListVenues(ctx, true)
	if len(approved) != 0 {
		t.Fatalf("unapproved venues leaked into listing: %#v", approved)
	}

	if _, err := s.SetVenueApproval(ctx, v2.ID, admin.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := s.SetVenueApproval(ctx, v1.ID, admin.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}

	approved, _ = s.ListVenues(ctx, true)
	if len(approved) != 2 {
		t.Fatalf("expected both venues, got %d", len(approved))
	}
	// Ordered by creation time descending, not approval time.
	if approved[0].ID != v2.ID || approved[1].ID != v1.ID {
		t.Fatalf("wrong order: %#v", approved)
	}
}

func TestSetVenueApprovalIdempotent(t *testing.T) {
	s, v, _ := fixture(t, CancelBookerOrAdmin)
	ctx := context.Background()

	got, err := s.GetVenue(ctx, v.ID)
	if err != nil {
		t.Fatalf("get venue: %v", err)
	}
	firstAt := got.ApprovedAt

	again, err := s.SetVenueApproval(ctx, v.ID, "admin-2", true)
	if err != nil {
		t.Fatalf("re-approve must be a no-op success: %v", err)
	}
	if again.ApprovedBy != admin.ID || !again.ApprovedAt.Equal(*firstAt) {
		t.Fatalf("re-approval mutated approval metadata: %#v", again)
	}
}

func TestCreateVenueRequiresName(t *testing.T) {
	s := NewInMemory(payment.NewSimulated(), CancelBookerOrAdmin)
	if _, err := s.CreateVenue(context.Background(), owner, VenueRequest{}); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

// gatedSettler blocks inside Settle until released, so tests can observe
// what the engine keeps locked during gateway I/O.
type gatedSettler struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedSettler) Settle(ctx context.Context, bookingID string, amountCents int64) (payment.Settlement, error) {
	close(g.started)
	<-g.release
	return payment.Settlement{Status: payment.StatusPaid}, nil
}

func (g *gatedSettler) Refund(ctx context.Context, bookingID string, amountCents int64) (payment.Settlement, error) {
	return payment.Settlement{Status: payment.StatusRefunded}, nil
}

func TestReadsProceedDuringSettlement(t *testing.T) {
	gate := &gatedSettler{started: make(chan struct{}), release: make(chan struct{})}
	s := NewInMemory(gate, CancelBookerOrAdmin)
	ctx := context.Background()

	v, err := s.CreateVenue(ctx, owner, VenueRequest{Name: "Gated Park"})
	if err != nil {
		t.Fatalf("create venue: %v", err)
	}
	if _, err := s.SetVenueApproval(ctx, v.ID, admin.ID, true); err != nil {
		t.Fatalf("approve venue: %v", err)
	}
	c, err := s.AddCourt(ctx, owner, CourtRequest{VenueID: v.ID, Name: "Court 1", PricePerHour: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("add court: %v", err)
	}

	created := make(chan error, 1)
	go func() {
		_, err := s.CreateBooking(ctx, user, CreateRequest{CourtID: c.ID, StartAt: at(1, 10, 0), EndAt: at(1, 11, 0)})
		created <- err
	}()

	<-gate.started
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		if _, err := s.ListVenues(ctx, true); err != nil {
			t.Errorf("list venues: %v", err)
		}
		if _, err := s.GetVenue(ctx, v.ID); err != nil {
			t.Errorf("get venue: %v", err)
		}
	}()
	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		t.Fatal("reads blocked while a settlement was in flight")
	}

	close(gate.release)
	if err := <-created; err != nil {
		t.Fatalf("create booking: %v", err)
	}
}
