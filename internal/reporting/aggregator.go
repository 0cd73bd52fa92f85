package reporting

import (
	"context"
	"sort"
	"sync"
	"time"

	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/payment"
	"quickcourt.org/internal/workflow"
)

const topSportsLimit = 10

// Service derives operational metrics from committed state. All methods are
// read-only and deterministic; booking and approval traffic never depends on
// them.
type Service interface {
	BookingActivity(ctx context.Context) ([]TrendPoint, error)
	RegistrationTrends(ctx context.Context) ([]TrendPoint, error)
	ApprovalTrends(ctx context.Context) ([]TrendPoint, error)
	MostActiveSports(ctx context.Context) ([]SportCount, error)
	OwnerDashboard(ctx context.Context, ownerID string) (OwnerDashboard, error)
	GlobalStats(ctx context.Context) (GlobalStats, error)
	RefreshOwnerMetrics(ctx context.Context, ownerID string) (OwnerMetrics, error)
}

// Source exposes point-in-time snapshots of committed entities. The
// in-memory engines provide these directly; store/pg answers the same
// questions in SQL instead of going through an Aggregator.
type Source interface {
	SnapshotBookings(ctx context.Context) ([]booking.Booking, error)
	SnapshotVenues(ctx context.Context) ([]booking.Venue, error)
	SnapshotCourts(ctx context.Context) ([]booking.Court, error)
	SnapshotUsers(ctx context.Context) ([]workflow.User, error)
}

// Aggregator computes metrics from a Source snapshot.
type Aggregator struct {
	src Source

	mu      sync.RWMutex
	rollups map[string]OwnerMetrics
}

var _ Service = (*Aggregator)(nil)

func NewAggregator(src Source) *Aggregator {
	return &Aggregator{src: src, rollups: make(map[string]OwnerMetrics)}
}

// BookingActivity buckets booking start times by UTC day.
func (a *Aggregator) BookingActivity(ctx context.Context) ([]TrendPoint, error) {
	bookings, err := a.src.SnapshotBookings(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, b := range bookings {
		counts[dayKey(b.StartAt)]++
	}
	return sortedSeries(counts), nil
}

// RegistrationTrends buckets user registrations by UTC day.
func (a *Aggregator) RegistrationTrends(ctx context.Context) ([]TrendPoint, error) {
	users, err := a.src.SnapshotUsers(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, u := range users {
		counts[dayKey(u.CreatedAt)]++
	}
	return sortedSeries(counts), nil
}

// ApprovalTrends buckets approved venues by their creation day.
func (a *Aggregator) ApprovalTrends(ctx context.Context) ([]TrendPoint, error) {
	venues, err := a.src.SnapshotVenues(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, v := range venues {
		if v.IsApproved {
			counts[dayKey(v.CreatedAt)]++
		}
	}
	return sortedSeries(counts), nil
}

// MostActiveSports counts bookings per court sport, descending, name
// ascending on ties, capped at ten.
func (a *Aggregator) MostActiveSports(ctx context.Context) ([]SportCount, error) {
	bookings, err := a.src.SnapshotBookings(ctx)
	if err != nil {
		return nil, err
	}
	courts, err := a.src.SnapshotCourts(ctx)
	if err != nil {
		return nil, err
	}
	sportByCourt := make(map[string]string, len(courts))
	for _, c := range courts {
		sportByCourt[c.ID] = c.Sport
	}
	counts := make(map[string]int)
	for _, b := range bookings {
		sport := sportByCourt[b.CourtID]
		if sport == "" {
			continue
		}
		counts[sport]++
	}
	out := make([]SportCount, 0, len(counts))
	for sport, n := range counts {
		out = append(out, SportCount{Sport: sport, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sport < out[j].Sport
	})
	if len(out) > topSportsLimit {
		out = out[:topSportsLimit]
	}
	return out, nil
}

// OwnerDashboard derives the owner's rollup from committed data. Earnings
// sum settled amounts only.
func (a *Aggregator) OwnerDashboard(ctx context.Context, ownerID string) (OwnerDashboard, error) {
	users, err := a.src.SnapshotUsers(ctx)
	if err != nil {
		return OwnerDashboard{}, err
	}
	ownerName := ""
	found := false
	for _, u := range users {
		if u.ID == ownerID {
			ownerName = u.Name
			found = true
			break
		}
	}
	if !found {
		return OwnerDashboard{}, ErrOwnerNotFound
	}

	bookings, err := a.src.SnapshotBookings(ctx)
	if err != nil {
		return OwnerDashboard{}, err
	}
	venues, err := a.src.SnapshotVenues(ctx)
	if err != nil {
		return OwnerDashboard{}, err
	}
	courts, err := a.src.SnapshotCourts(ctx)
	if err != nil {
		return OwnerDashboard{}, err
	}

	owned := make(map[string]bool)
	for _, v := range venues {
		if v.OwnerID == ownerID {
			owned[v.ID] = true
		}
	}

	dash := OwnerDashboard{OwnerID: ownerID, OwnerName: ownerName}
	byDate := make(map[string]int)
	for _, b := range bookings {
		if !owned[b.VenueID] {
			continue
		}
		if b.Status == booking.StatusCancelled {
			continue
		}
		dash.TotalBookings++
		byDate[dayKey(b.StartAt)]++
		if b.PaymentStatus == payment.StatusPaid {
			dash.EarningsCents += b.AmountCents
		}
	}
	for _, c := range courts {
		if owned[c.VenueID] && c.Status == booking.CourtActive {
			dash.ActiveCourts++
		}
	}
	dash.BookingsByDate = sortedSeries(byDate)
	return dash, nil
}

func (a *Aggregator) GlobalStats(ctx context.Context) (GlobalStats, error) {
	users, err := a.src.SnapshotUsers(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	venues, err := a.src.SnapshotVenues(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	bookings, err := a.src.SnapshotBookings(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	courts, err := a.src.SnapshotCourts(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	stats := GlobalStats{
		TotalUsers:    len(users),
		TotalVenues:   len(venues),
		TotalBookings: len(bookings),
	}
	for _, c := range courts {
		if c.Status == booking.CourtActive {
			stats.ActiveCourts++
		}
	}
	return stats, nil
}

// RefreshOwnerMetrics recomputes and caches the owner's rollup row.
func (a *Aggregator) RefreshOwnerMetrics(ctx context.Context, ownerID string) (OwnerMetrics, error) {
	dash, err := a.OwnerDashboard(ctx, ownerID)
	if err != nil {
		return OwnerMetrics{}, err
	}
	m := OwnerMetrics{
		OwnerID:       ownerID,
		TotalBookings: dash.TotalBookings,
		ActiveCourts:  dash.ActiveCourts,
		EarningsCents: dash.EarningsCents,
		UpdatedAt:     time.Now().UTC(),
	}
	a.mu.Lock()
	a.rollups[ownerID] = m
	a.mu.Unlock()
	return m, nil
}

// CachedOwnerMetrics returns the last refreshed rollup, if any.
func (a *Aggregator) CachedOwnerMetrics(ownerID string) (OwnerMetrics, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.rollups[ownerID]
	return m, ok
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func sortedSeries(counts map[string]int) []TrendPoint {
	out := make([]TrendPoint, 0, len(counts))
	for date, n := range counts {
		out = append(out, TrendPoint{Date: date, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
