package pg

import (
	"context"
	"database/sql"
	"errors"

	"quickcourt.org/internal/reporting"
)

// Reporting runs directly in SQL here; the in-memory Aggregator exists for
// the non-durable configuration.

func (s *Store) BookingActivity(ctx context.Context) ([]reporting.TrendPoint, error) {
	return s.trend(ctx, `
		select to_char(start_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from booking group by day order by day asc
	`)
}

func (s *Store) RegistrationTrends(ctx context.Context) ([]reporting.TrendPoint, error) {
	return s.trend(ctx, `
		select to_char(created_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from app_user group by day order by day asc
	`)
}

func (s *Store) ApprovalTrends(ctx context.Context) ([]reporting.TrendPoint, error) {
	return s.trend(ctx, `
		select to_char(created_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from venue where is_approved group by day order by day asc
	`)
}

func (s *Store) trend(ctx context.Context, query string) ([]reporting.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reporting.TrendPoint
	for rows.Next() {
		var p reporting.TrendPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) MostActiveSports(ctx context.Context) ([]reporting.SportCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.sport, count(*)
		from booking b join court c on c.id=b.court_id
		where c.sport <> ''
		group by c.sport
		order by count(*) desc, c.sport asc
		limit 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reporting.SportCount
	for rows.Next() {
		var sc reporting.SportCount
		if err := rows.Scan(&sc.Sport, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) OwnerDashboard(ctx context.Context, ownerID string) (reporting.OwnerDashboard, error) {
	dash := reporting.OwnerDashboard{OwnerID: ownerID}
	err := s.db.QueryRowContext(ctx, `select name from app_user where id=$1`, ownerID).Scan(&dash.OwnerName)
	if errors.Is(err, sql.ErrNoRows) {
		return reporting.OwnerDashboard{}, reporting.ErrOwnerNotFound
	}
	if err != nil {
		return reporting.OwnerDashboard{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		select count(*),
			coalesce(sum(amount_cents) filter (where payment_status='paid'), 0)
		from booking where owner_id=$1 and status <> 'cancelled'
	`, ownerID).Scan(&dash.TotalBookings, &dash.EarningsCents)
	if err != nil {
		return reporting.OwnerDashboard{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		select count(*) from court c
		join venue v on v.id=c.venue_id
		where v.owner_id=$1 and c.status='active'
	`, ownerID).Scan(&dash.ActiveCourts)
	if err != nil {
		return reporting.OwnerDashboard{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select to_char(start_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from booking where owner_id=$1 and status <> 'cancelled'
		group by day order by day asc
	`, ownerID)
	if err != nil {
		return reporting.OwnerDashboard{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p reporting.TrendPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return reporting.OwnerDashboard{}, err
		}
		dash.BookingsByDate = append(dash.BookingsByDate, p)
	}
	return dash, rows.Err()
}

func (s *Store) GlobalStats(ctx context.Context) (reporting.GlobalStats, error) {
	var stats reporting.GlobalStats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from app_user),
			(select count(*) from venue),
			(select count(*) from booking),
			(select count(*) from court where status='active')
	`).Scan(&stats.TotalUsers, &stats.TotalVenues, &stats.TotalBookings, &stats.ActiveCourts)
	return stats, err
}

// RefreshOwnerMetrics recomputes the owner's rollup and upserts the cache
// row. The row is never read back as a source of truth.
func (s *Store) RefreshOwnerMetrics(ctx context.Context, ownerID string) (reporting.OwnerMetrics, error) {
	dash, err := s.OwnerDashboard(ctx, ownerID)
	if err != nil {
		return reporting.OwnerMetrics{}, err
	}
	m := reporting.OwnerMetrics{
		OwnerID:       ownerID,
		TotalBookings: dash.TotalBookings,
		ActiveCourts:  dash.ActiveCourts,
		EarningsCents: dash.EarningsCents,
		UpdatedAt:     s.now(),
	}
	_, err = s.db.ExecContext(ctx, `
		insert into owner_metrics(owner_id, total_bookings, active_courts, earnings_cents, updated_at)
		values ($1,$2,$3,$4,$5)
		on conflict (owner_id) do update
		set total_bookings=excluded.total_bookings,
			active_courts=excluded.active_courts,
			earnings_cents=excluded.earnings_cents,
			updated_at=excluded.updated_at
	`, m.OwnerID, m.TotalBookings, m.ActiveCourts, m.EarningsCents, m.UpdatedAt)
	if err != nil {
		return reporting.OwnerMetrics{}, err
	}
	return m, nil
}
