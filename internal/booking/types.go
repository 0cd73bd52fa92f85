package booking

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"quickcourt.org/internal/payment"
)

// Status is the persisted lifecycle state of a booking. Transitions are
// booked -> cancelled (explicit) and booked -> completed (derived once endAt
// passes; see EffectiveStatus).
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ParseStatus validates a status string from the boundary.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusBooked:
		return StatusBooked, true
	case StatusCancelled:
		return StatusCancelled, true
	case StatusCompleted:
		return StatusCompleted, true
	}
	return "", false
}

// CourtStatus describes whether a court accepts bookings.
type CourtStatus string

const (
	CourtActive      CourtStatus = "active"
	CourtDisabled    CourtStatus = "disabled"
	CourtMaintenance CourtStatus = "maintenance"
)

// CancelPolicy selects who may cancel a booking.
type CancelPolicy int

const (
	// CancelBookerOrAdmin restricts cancellation to the original booker or
	// an admin. Default.
	CancelBookerOrAdmin CancelPolicy = iota
	// CancelAnyActor lets any authenticated, non-banned actor cancel any
	// booking.
	CancelAnyActor
)

// Venue is a facility owned by a single owner. Created unapproved; only
// approved venues are visible to booking flows.
type Venue struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsApproved  bool       `json:"is_approved"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RatingAvg   float64    `json:"rating_avg,omitempty"`
	RatingCount int        `json:"rating_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Court is an individually bookable resource within a venue.
type Court struct {
	ID           string          `json:"id"`
	VenueID      string          `json:"venue_id"`
	Name         string          `json:"name"`
	Sport        string          `json:"sport,omitempty"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	Status       CourtStatus     `json:"status"`
}

// TimeSlot is one recurring weekly operating window for a court, with times
// in "15:04" form. A court without slots is always open.
type TimeSlot struct {
	CourtID   string       `json:"court_id"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     string       `json:"start"`
	End       string       `json:"end"`
}

// BlockedWindow is an ad-hoc unavailability record (maintenance etc.).
type BlockedWindow struct {
	ID        string    `json:"id"`
	CourtID   string    `json:"court_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Reason    string    `json:"reason,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Booking reserves a court for a half-open interval [StartAt, EndAt).
type Booking struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	OwnerID        string            `json:"owner_id"`
	VenueID        string            `json:"venue_id"`
	CourtID        string            `json:"court_id"`
	StartAt        time.Time         `json:"start_at"`
	EndAt          time.Time         `json:"end_at"`
	AmountCents    int64             `json:"amount_cents"`
	PaymentStatus  payment.Status    `json:"payment_status"`
	PaymentMeta    map[string]string `json:"payment_meta,omitempty"`
	Status         Status            `json:"status"`
	CancelledBy    string            `json:"cancelled_by,omitempty"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`

	// Denormalized display fields, populated on reads.
	VenueName string `json:"venue_name,omitempty"`
	CourtName string `json:"court_name,omitempty"`
}

// EffectiveStatus is the status the booking should be treated as having at
// time now: a booked row whose interval has fully elapsed reads as completed
// even before any sweep materializes it.
func (b Booking) EffectiveStatus(now time.Time) Status {
	if b.Status == StatusBooked && !now.Before(b.EndAt) {
		return StatusCompleted
	}
	return b.Status
}

// HistoryAction is the kind of an append-only booking history entry.
type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistoryCancelled HistoryAction = "cancelled"
	HistoryCompleted HistoryAction = "completed"
)

// HistoryEntry is one append-only audit record for a booking. Never mutated
// or deleted.
type HistoryEntry struct {
	ID          string        `json:"id"`
	BookingID   string        `json:"booking_id"`
	Action      HistoryAction `json:"action"`
	PerformedBy string        `json:"performed_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CreateRequest is the validated input for CreateBooking.
type CreateRequest struct {
	CourtID        string
	StartAt        time.Time
	EndAt          time.Time
	IdempotencyKey string
}

// ListFilter narrows ListBookings. Zero values match everything.
type ListFilter struct {
	UserID  string
	OwnerID string
	Status  Status
}

// VenueRequest is the input for venue creation.
type VenueRequest struct {
	Name        string
	Description string
}

// CourtRequest is the input for adding a court to a venue.
type CourtRequest struct {
	VenueID      string
	Name         string
	Sport        string
	PricePerHour decimal.Decimal
}

var (
	ErrNotFound         = errors.New("booking: not found")
	ErrCourtNotFound    = errors.New("booking: court not found")
	ErrVenueNotFound    = errors.New("booking: venue not found")
	ErrCourtInactive    = errors.New("booking: court is not active")
	ErrVenueNotApproved = errors.New("booking: venue is not approved")
	ErrConflict         = errors.New("booking: interval conflicts with an existing booking")
	ErrInvalidInterval  = errors.New("booking: invalid interval")
	ErrInvalidName      = errors.New("booking: name is required")
	ErrPastBooking      = errors.New("booking: interval is in the past")
	ErrAlreadyCancelled = errors.New("booking: already cancelled")
	ErrBannedActor      = errors.New("booking: actor is banned")
	ErrForbidden        = errors.New("booking: actor is not allowed to perform this action")
	ErrStoreUnavailable = errors.New("booking: store unavailable")
)
