package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/ids"
	"quickcourt.org/internal/payment"
)

// Service is the booking lifecycle engine.
type Service interface {
	IsAvailable(ctx context.Context, courtID string, startAt, endAt time.Time) (bool, error)
	CreateBooking(ctx context.Context, actor auth.Actor, req CreateRequest) (Booking, error)
	CancelBooking(ctx context.Context, actor auth.Actor, bookingID string) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, f ListFilter) ([]Booking, error)
	History(ctx context.Context, bookingID string) ([]HistoryEntry, error)
	CompleteExpired(ctx context.Context) (int, error)
}

// Catalog manages the venue and court inventory bookings run against.
type Catalog interface {
	CreateVenue(ctx context.Context, actor auth.Actor, req VenueRequest) (Venue, error)
	AddCourt(ctx context.Context, actor auth.Actor, req CourtRequest) (Court, error)
	AddTimeSlot(ctx context.Context, actor auth.Actor, slot TimeSlot) error
	AddBlockedWindow(ctx context.Context, actor auth.Actor, block BlockedWindow) (BlockedWindow, error)
	GetVenue(ctx context.Context, id string) (Venue, error)
	ListVenues(ctx context.Context, approved bool) ([]Venue, error)
	SetVenueApproval(ctx context.Context, venueID, adminID string, approved bool) (Venue, error)
}

// InMemory implements Service and Catalog with in-process concurrency
// safety. The durable implementation lives in store/pg.
type InMemory struct {
	settler payment.Settler
	policy  CancelPolicy
	now     func() time.Time

	mu       sync.RWMutex
	venues   map[string]*Venue
	courts   map[string]*Court
	slots    map[string][]TimeSlot      // courtID -> weekly template
	blocks   map[string][]BlockedWindow // courtID -> blocked windows
	bookings map[string]*Booking
	history  map[string][]HistoryEntry // bookingID -> entries
	idem     map[string]string         // idempotency key -> booking id

	courtLockMu sync.Mutex
	courtLocks  map[string]*sync.Mutex
}

// NewInMemory creates an empty engine settling through the given collaborator.
func NewInMemory(settler payment.Settler, policy CancelPolicy) *InMemory {
	return &InMemory{
		settler:    settler,
		policy:     policy,
		now:        func() time.Time { return time.Now().UTC() },
		venues:     make(map[string]*Venue),
		courts:     make(map[string]*Court),
		slots:      make(map[string][]TimeSlot),
		blocks:     make(map[string][]BlockedWindow),
		bookings:   make(map[string]*Booking),
		history:    make(map[string][]HistoryEntry),
		idem:       make(map[string]string),
		courtLocks: make(map[string]*sync.Mutex),
	}
}

// SetNow overrides the clock. Tests only.
func (s *InMemory) SetNow(now func() time.Time) { s.now = now }

// courtLock returns the mutex serializing check-then-insert for one court,
// so bookings on different courts proceed fully in parallel.
func (s *InMemory) courtLock(courtID string) *sync.Mutex {
	s.courtLockMu.Lock()
	defer s.courtLockMu.Unlock()
	l, ok := s.courtLocks[courtID]
	if !ok {
		l = &sync.Mutex{}
		s.courtLocks[courtID] = l
	}
	return l
}

// --- Catalog ---

func (s *InMemory) CreateVenue(ctx context.Context, actor auth.Actor, req VenueRequest) (Venue, error) {
	if actor.Banned {
		return Venue{}, ErrBannedActor
	}
	if !actor.IsOwner() && !actor.IsAdmin() {
		return Venue{}, ErrForbidden
	}
	if req.Name == "" {
		return Venue{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := &Venue{
		ID:          ids.New(),
		OwnerID:     actor.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   s.now(),
	}
	s.venues[v.ID] = v
	return *v, nil
}

func (s *InMemory) AddCourt(ctx context.Context, actor auth.Actor, req CourtRequest) (Court, error) {
	if actor.Banned {
		return Court{}, ErrBannedActor
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[req.VenueID]
	if !ok {
		return Court{}, ErrVenueNotFound
	}
	if v.OwnerID != actor.ID && !actor.IsAdmin() {
		return Court{}, ErrForbidden
	}
	c := &Court{
		ID:           ids.New(),
		VenueID:      req.VenueID,
		Name:         req.Name,
		Sport:        req.Sport,
		PricePerHour: req.PricePerHour,
		Status:       CourtActive,
	}
	s.courts[c.ID] = c
	return *c, nil
}

func (s *InMemory) AddTimeSlot(ctx context.Context, actor auth.Actor, slot TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courts[slot.CourtID]
	if !ok {
		return ErrCourtNotFound
	}
	if v := s.venues[c.VenueID]; v != nil && v.OwnerID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	s.slots[slot.CourtID] = append(s.slots[slot.CourtID], slot)
	return nil
}

func (s *InMemory) AddBlockedWindow(ctx context.Context, actor auth.Actor, block BlockedWindow) (BlockedWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courts[block.CourtID]
	if !ok {
		return BlockedWindow{}, ErrCourtNotFound
	}
	if v := s.venues[c.VenueID]; v != nil && v.OwnerID != actor.ID && !actor.IsAdmin() {
		return BlockedWindow{}, ErrForbidden
	}
	block.ID = ids.New()
	block.CreatedBy = actor.ID
	s.blocks[block.CourtID] = append(s.blocks[block.CourtID], block)
	return block, nil
}

func (s *InMemory) GetVenue(ctx context.Context, id string) (Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[id]
	if !ok {
		return Venue{}, ErrVenueNotFound
	}
	return *v, nil
}

func (s *InMemory) ListVenues(ctx context.Context, approved bool) ([]Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Venue
	for _, v := range s.venues {
		if v.IsApproved == approved {
			out = append(out, *v)
		}
	}
	// Newest first, matching the public listing order.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemory) SetVenueApproval(ctx context.Context, venueID, adminID string, approved bool) (Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[venueID]
	if !ok {
		return Venue{}, ErrVenueNotFound
	}
	if approved {
		if !v.IsApproved {
			at := s.now()
			v.IsApproved = true
			v.ApprovedBy = adminID
			v.ApprovedAt = &at
		}
	} else {
		v.IsApproved = false
		v.ApprovedBy = ""
		v.ApprovedAt = nil
	}
	return *v, nil
}

// --- Availability ---

func (s *InMemory) IsAvailable(ctx context.Context, courtID string, startAt, endAt time.Time) (bool, error) {
	if !startAt.Before(endAt) {
		return false, ErrInvalidInterval
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableLocked(courtID, startAt, endAt)
}

// availableLocked assumes at least a read lock on s.mu.
func (s *InMemory) availableLocked(courtID string, startAt, endAt time.Time) (bool, error) {
	c, ok := s.courts[courtID]
	if !ok {
		return false, ErrCourtNotFound
	}
	if c.Status != CourtActive {
		return false, ErrCourtInactive
	}
	if blockedBy(s.blocks[courtID], startAt, endAt) {
		return false, nil
	}
	if !withinTemplate(s.slots[courtID], startAt, endAt) {
		return false, nil
	}
	for _, b := range s.bookings {
		if b.CourtID != courtID || b.Status != StatusBooked {
			continue
		}
		if Overlaps(startAt, endAt, b.StartAt, b.EndAt) {
			return false, nil
		}
	}
	return true, nil
}

// --- Lifecycle ---

func (s *InMemory) CreateBooking(ctx context.Context, actor auth.Actor, req CreateRequest) (Booking, error) {
	if actor.Banned {
		return Booking{}, ErrBannedActor
	}
	now := s.now()
	if err := ValidateInterval(req.StartAt, req.EndAt, now); err != nil {
		return Booking{}, err
	}

	s.mu.RLock()
	c, ok := s.courts[req.CourtID]
	if !ok {
		s.mu.RUnlock()
		return Booking{}, ErrCourtNotFound
	}
	v, ok := s.venues[c.VenueID]
	if !ok {
		s.mu.RUnlock()
		return Booking{}, ErrVenueNotFound
	}
	court, venue := *c, *v
	s.mu.RUnlock()

	if !venue.IsApproved {
		return Booking{}, ErrVenueNotApproved
	}

	amount := QuoteAmountCents(court.PricePerHour, req.StartAt, req.EndAt)

	// Serialize check-then-insert per court; other courts stay parallel.
	// The engine lock is only taken for the map reads and the final
	// insert, never across the settlement call.
	lock := s.courtLock(req.CourtID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	if req.IdempotencyKey != "" {
		if id, ok := s.idem[req.IdempotencyKey]; ok {
			replay := s.withDisplayLocked(*s.bookings[id])
			s.mu.RUnlock()
			return replay, nil
		}
	}
	free, err := s.availableLocked(req.CourtID, req.StartAt, req.EndAt)
	s.mu.RUnlock()
	if err != nil {
		return Booking{}, err
	}
	if !free {
		return Booking{}, ErrConflict
	}

	b := &Booking{
		ID:             ids.New(),
		UserID:         actor.ID,
		OwnerID:        venue.OwnerID,
		VenueID:        venue.ID,
		CourtID:        court.ID,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		AmountCents:    amount,
		PaymentStatus:  payment.StatusPending,
		Status:         StatusBooked,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}

	// Gateway I/O happens under the court lock alone; reads and bookings
	// on other courts are not stalled by a slow settlement.
	if s.settler != nil {
		settlement, err := s.settler.Settle(ctx, b.ID, amount)
		if err != nil {
			return Booking{}, err
		}
		b.PaymentStatus = settlement.Status
		b.PaymentMeta = settlement.Meta
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
	if req.IdempotencyKey != "" {
		s.idem[req.IdempotencyKey] = b.ID
	}
	s.appendHistoryLocked(b.ID, HistoryCreated, actor.ID, now)

	return s.withDisplayLocked(*b), nil
}

func (s *InMemory) CancelBooking(ctx context.Context, actor auth.Actor, bookingID string) (Booking, error) {
	if actor.Banned {
		return Booking{}, ErrBannedActor
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if s.policy == CancelBookerOrAdmin && b.UserID != actor.ID && !actor.IsAdmin() {
		return Booking{}, ErrForbidden
	}
	if b.Status == StatusCancelled {
		return Booking{}, ErrAlreadyCancelled
	}
	if b.EndAt.Before(now) {
		return Booking{}, ErrPastBooking
	}

	b.Status = StatusCancelled
	b.CancelledBy = actor.ID
	b.CancelledAt = &now
	s.appendHistoryLocked(b.ID, HistoryCancelled, actor.ID, now)

	if s.settler != nil && b.PaymentStatus == payment.StatusPaid {
		if settlement, err := s.settler.Refund(ctx, b.ID, b.AmountCents); err == nil {
			b.PaymentStatus = settlement.Status
			b.PaymentMeta = settlement.Meta
		}
	}
	return s.withDisplayLocked(*b), nil
}

func (s *InMemory) GetBooking(ctx context.Context, id string) (Booking, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	out := *b
	out.Status = out.EffectiveStatus(now)
	return s.withDisplayLocked(out), nil
}

func (s *InMemory) ListBookings(ctx context.Context, f ListFilter) ([]Booking, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Booking
	for _, b := range s.bookings {
		if f.UserID != "" && b.UserID != f.UserID {
			continue
		}
		if f.OwnerID != "" && b.OwnerID != f.OwnerID {
			continue
		}
		item := *b
		item.Status = item.EffectiveStatus(now)
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		out = append(out, s.withDisplayLocked(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.After(out[j].StartAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemory) History(ctx context.Context, bookingID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.bookings[bookingID]; !ok {
		return nil, ErrNotFound
	}
	return append([]HistoryEntry(nil), s.history[bookingID]...), nil
}

// CompleteExpired materializes the derived completed state for booked rows
// whose interval has elapsed. Idempotent; safe to run concurrently.
func (s *InMemory) CompleteExpired(ctx context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.Status == StatusBooked && b.EndAt.Before(now) {
			b.Status = StatusCompleted
			s.appendHistoryLocked(b.ID, HistoryCompleted, "", now)
			n++
		}
	}
	return n, nil
}

// --- Reporting snapshots ---

// SnapshotBookings returns a copy of all bookings with effective status.
func (s *InMemory) SnapshotBookings(ctx context.Context) ([]Booking, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		item := *b
		item.Status = item.EffectiveStatus(now)
		out = append(out, item)
	}
	return out, nil
}

// SnapshotVenues returns a copy of all venues.
func (s *InMemory) SnapshotVenues(ctx context.Context) ([]Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Venue, 0, len(s.venues))
	for _, v := range s.venues {
		out = append(out, *v)
	}
	return out, nil
}

// SnapshotCourts returns a copy of all courts.
func (s *InMemory) SnapshotCourts(ctx context.Context) ([]Court, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Court, 0, len(s.courts))
	for _, c := range s.courts {
		out = append(out, *c)
	}
	return out, nil
}

// --- helpers ---

func (s *InMemory) appendHistoryLocked(bookingID string, action HistoryAction, actorID string, at time.Time) {
	s.history[bookingID] = append(s.history[bookingID], HistoryEntry{
		ID:          ids.New(),
		BookingID:   bookingID,
		Action:      action,
		PerformedBy: actorID,
		CreatedAt:   at,
	})
}

func (s *InMemory) withDisplayLocked(b Booking) Booking {
	if v, ok := s.venues[b.VenueID]; ok {
		b.VenueName = v.Name
	}
	if c, ok := s.courts[b.CourtID]; ok {
		b.CourtName = c.Name
	}
	return b
}
