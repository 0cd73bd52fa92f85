package reporting

import (
	"errors"
	"time"
)

// TrendPoint is one calendar-day bucket of a time series. Date is a
// UTC-normalized "YYYY-MM-DD" string.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// SportCount ranks a sport by booking volume.
type SportCount struct {
	Sport string `json:"sport"`
	Count int    `json:"count"`
}

// OwnerDashboard is the precomputed payload for an owner's dashboard.
// Earnings stay in minor units; division by 100 happens at presentation.
type OwnerDashboard struct {
	OwnerID        string       `json:"owner_id"`
	OwnerName      string       `json:"owner_name"`
	TotalBookings  int          `json:"total_bookings"`
	ActiveCourts   int          `json:"active_courts"`
	EarningsCents  int64        `json:"earnings_cents"`
	BookingsByDate []TrendPoint `json:"bookings_by_date"`
}

// OwnerMetrics is the cached per-owner rollup row. A cache only, never a
// source of truth.
type OwnerMetrics struct {
	OwnerID       string    `json:"owner_id"`
	TotalBookings int       `json:"total_bookings"`
	ActiveCourts  int       `json:"active_courts"`
	EarningsCents int64     `json:"earnings_cents"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GlobalStats are platform-wide totals for the admin dashboard.
type GlobalStats struct {
	TotalUsers    int `json:"total_users"`
	TotalVenues   int `json:"total_venues"`
	TotalBookings int `json:"total_bookings"`
	ActiveCourts  int `json:"active_courts"`
}

var ErrOwnerNotFound = errors.New("reporting: owner not found")
