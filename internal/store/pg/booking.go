package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/ids"
	"quickcourt.org/internal/payment"
)

// bookingCols selects a booking row with its effective status and display
// names. A booked row whose interval has elapsed reads as completed even
// before the sweep materializes it.
const bookingCols = `
	b.id, b.user_id, b.owner_id, b.venue_id, b.court_id,
	b.start_at, b.end_at, b.amount_cents, b.payment_status, b.payment_meta,
	case when b.status='booked' and b.end_at <= $1 then 'completed' else b.status end,
	coalesce(b.cancelled_by,''), b.cancelled_at, coalesce(b.idempotency_key,''), b.created_at,
	v.name, c.name
	from booking b
	join venue v on v.id = b.venue_id
	join court c on c.id = b.court_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (booking.Booking, error) {
	var b booking.Booking
	var meta []byte
	err := row.Scan(
		&b.ID, &b.UserID, &b.OwnerID, &b.VenueID, &b.CourtID,
		&b.StartAt, &b.EndAt, &b.AmountCents, &b.PaymentStatus, &meta,
		&b.Status, &b.CancelledBy, &b.CancelledAt, &b.IdempotencyKey, &b.CreatedAt,
		&b.VenueName, &b.CourtName,
	)
	if err != nil {
		return booking.Booking{}, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &b.PaymentMeta)
	}
	return b, nil
}

// --- Catalog ---

func (s *Store) CreateVenue(ctx context.Context, actor auth.Actor, req booking.VenueRequest) (booking.Venue, error) {
	if actor.Banned {
		return booking.Venue{}, booking.ErrBannedActor
	}
	if !actor.IsOwner() && !actor.IsAdmin() {
		return booking.Venue{}, booking.ErrForbidden
	}
	if req.Name == "" {
		return booking.Venue{}, booking.ErrInvalidName
	}
	v := booking.Venue{
		ID:          ids.New(),
		OwnerID:     actor.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		insert into venue(id, owner_id, name, description, is_approved, created_at)
		values ($1,$2,$3,$4,false,$5)
	`, v.ID, v.OwnerID, v.Name, v.Description, v.CreatedAt)
	if err != nil {
		return booking.Venue{}, err
	}
	return v, nil
}

func (s *Store) AddCourt(ctx context.Context, actor auth.Actor, req booking.CourtRequest) (booking.Court, error) {
	if actor.Banned {
		return booking.Court{}, booking.ErrBannedActor
	}
	var ownerID string
	err := s.db.QueryRowContext(ctx, `select owner_id from venue where id=$1`, req.VenueID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Court{}, booking.ErrVenueNotFound
	}
	if err != nil {
		return booking.Court{}, err
	}
	if ownerID != actor.ID && !actor.IsAdmin() {
		return booking.Court{}, booking.ErrForbidden
	}
	c := booking.Court{
		ID:           ids.New(),
		VenueID:      req.VenueID,
		Name:         req.Name,
		Sport:        req.Sport,
		PricePerHour: req.PricePerHour,
		Status:       booking.CourtActive,
	}
	_, err = s.db.ExecContext(ctx, `
		insert into court(id, venue_id, name, sport, price_per_hour, status)
		values ($1,$2,$3,$4,$5,$6)
	`, c.ID, c.VenueID, c.Name, c.Sport, c.PricePerHour.String(), string(c.Status))
	if err != nil {
		return booking.Court{}, err
	}
	return c, nil
}

func (s *Store) AddTimeSlot(ctx context.Context, actor auth.Actor, slot booking.TimeSlot) error {
	ownerID, err := s.courtOwner(ctx, slot.CourtID)
	if err != nil {
		return err
	}
	if ownerID != actor.ID && !actor.IsAdmin() {
		return booking.ErrForbidden
	}
	_, err = s.db.ExecContext(ctx, `
		insert into court_time_slot(id, court_id, day_of_week, start_time, end_time)
		values ($1,$2,$3,$4,$5)
	`, ids.New(), slot.CourtID, int(slot.DayOfWeek), slot.Start, slot.End)
	return err
}

func (s *Store) AddBlockedWindow(ctx context.Context, actor auth.Actor, block booking.BlockedWindow) (booking.BlockedWindow, error) {
	ownerID, err := s.courtOwner(ctx, block.CourtID)
	if err != nil {
		return booking.BlockedWindow{}, err
	}
	if ownerID != actor.ID && !actor.IsAdmin() {
		return booking.BlockedWindow{}, booking.ErrForbidden
	}
	block.ID = ids.New()
	block.CreatedBy = actor.ID
	_, err = s.db.ExecContext(ctx, `
		insert into court_availability(id, court_id, start_at, end_at, reason, created_by)
		values ($1,$2,$3,$4,$5,$6)
	`, block.ID, block.CourtID, block.StartAt, block.EndAt, block.Reason, block.CreatedBy)
	if err != nil {
		return booking.BlockedWindow{}, err
	}
	return block, nil
}

func (s *Store) courtOwner(ctx context.Context, courtID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		select v.owner_id from court c join venue v on v.id=c.venue_id where c.id=$1
	`, courtID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", booking.ErrCourtNotFound
	}
	return ownerID, err
}

func (s *Store) GetVenue(ctx context.Context, id string) (booking.Venue, error) {
	v := booking.Venue{ID: id}
	err := s.db.QueryRowContext(ctx, `
		select owner_id, name, coalesce(description,''), is_approved,
			coalesce(approved_by,''), approved_at, rating_avg, rating_count, created_at
		from venue where id=$1
	`, id).Scan(&v.OwnerID, &v.Name, &v.Description, &v.IsApproved,
		&v.ApprovedBy, &v.ApprovedAt, &v.RatingAvg, &v.RatingCount, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Venue{}, booking.ErrVenueNotFound
	}
	if err != nil {
		return booking.Venue{}, err
	}
	return v, nil
}

func (s *Store) ListVenues(ctx context.Context, approved bool) ([]booking.Venue, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_id, name, coalesce(description,''), is_approved,
			coalesce(approved_by,''), approved_at, rating_avg, rating_count, created_at
		from venue where is_approved=$1
		order by created_at desc, id desc
	`, approved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Venue
	for rows.Next() {
		var v booking.Venue
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Name, &v.Description, &v.IsApproved,
			&v.ApprovedBy, &v.ApprovedAt, &v.RatingAvg, &v.RatingCount, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) SetVenueApproval(ctx context.Context, venueID, adminID string, approved bool) (booking.Venue, error) {
	var err error
	if approved {
		// First approval wins; re-approving keeps the original metadata.
		_, err = s.db.ExecContext(ctx, `
			update venue set is_approved=true, approved_by=$2, approved_at=$3
			where id=$1 and is_approved=false
		`, venueID, adminID, s.now())
	} else {
		_, err = s.db.ExecContext(ctx, `
			update venue set is_approved=false, approved_by=null, approved_at=null
			where id=$1
		`, venueID)
	}
	if err != nil {
		return booking.Venue{}, err
	}
	return s.GetVenue(ctx, venueID)
}

// --- Availability ---

func (s *Store) IsAvailable(ctx context.Context, courtID string, startAt, endAt time.Time) (bool, error) {
	if !startAt.Before(endAt) {
		return false, booking.ErrInvalidInterval
	}
	return s.available(ctx, s.db, courtID, startAt, endAt)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) available(ctx context.Context, q querier, courtID string, startAt, endAt time.Time) (bool, error) {
	var status string
	err := q.QueryRowContext(ctx, `select status from court where id=$1`, courtID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, booking.ErrCourtNotFound
	}
	if err != nil {
		return false, err
	}
	if booking.CourtStatus(status) != booking.CourtActive {
		return false, booking.ErrCourtInactive
	}

	var blocked bool
	err = q.QueryRowContext(ctx, `
		select exists(select 1 from court_availability where court_id=$1 and start_at < $3 and end_at > $2)
	`, courtID, startAt, endAt).Scan(&blocked)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	slots, err := s.loadSlots(ctx, q, courtID)
	if err != nil {
		return false, err
	}
	if !booking.FitsTemplate(slots, startAt, endAt) {
		return false, nil
	}

	var taken bool
	err = q.QueryRowContext(ctx, `
		select exists(select 1 from booking where court_id=$1 and status='booked' and start_at < $3 and end_at > $2)
	`, courtID, startAt, endAt).Scan(&taken)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func (s *Store) loadSlots(ctx context.Context, q querier, courtID string) ([]booking.TimeSlot, error) {
	rows, err := q.QueryContext(ctx, `
		select day_of_week, start_time, end_time from court_time_slot where court_id=$1
	`, courtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.TimeSlot
	for rows.Next() {
		var dow int
		slot := booking.TimeSlot{CourtID: courtID}
		if err := rows.Scan(&dow, &slot.Start, &slot.End); err != nil {
			return nil, err
		}
		slot.DayOfWeek = time.Weekday(dow)
		out = append(out, slot)
	}
	return out, rows.Err()
}

// --- Lifecycle ---

func (s *Store) CreateBooking(ctx context.Context, actor auth.Actor, req booking.CreateRequest) (booking.Booking, error) {
	if actor.Banned {
		return booking.Booking{}, booking.ErrBannedActor
	}
	now := s.now()
	if err := booking.ValidateInterval(req.StartAt, req.EndAt, now); err != nil {
		return booking.Booking{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Idempotency: replay the committed booking for a seen key.
	if req.IdempotencyKey != "" {
		b, err := scanBooking(tx.QueryRowContext(ctx,
			`select `+bookingCols+` where b.idempotency_key=$2`, now, req.IdempotencyKey))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return booking.Booking{}, err
		}
	}

	// Serialize check-then-insert per court; other courts stay parallel.
	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock(hashtextextended($1, 0))`, req.CourtID); err != nil {
		return booking.Booking{}, err
	}

	var (
		price      decimal.Decimal
		courtState string
		venueID    string
		ownerID    string
		approved   bool
		venueName  string
		courtName  string
	)
	err = tx.QueryRowContext(ctx, `
		select c.price_per_hour, c.status, v.id, v.owner_id, v.is_approved, v.name, c.name
		from court c join venue v on v.id=c.venue_id
		where c.id=$1
	`, req.CourtID).Scan(&price, &courtState, &venueID, &ownerID, &approved, &venueName, &courtName)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrCourtNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}
	if booking.CourtStatus(courtState) != booking.CourtActive {
		return booking.Booking{}, booking.ErrCourtInactive
	}
	if !approved {
		return booking.Booking{}, booking.ErrVenueNotApproved
	}

	var blocked bool
	if err := tx.QueryRowContext(ctx, `
		select exists(select 1 from court_availability where court_id=$1 and start_at < $3 and end_at > $2)
	`, req.CourtID, req.StartAt, req.EndAt).Scan(&blocked); err != nil {
		return booking.Booking{}, err
	}
	if blocked {
		return booking.Booking{}, booking.ErrConflict
	}

	slots, err := s.loadSlots(ctx, tx, req.CourtID)
	if err != nil {
		return booking.Booking{}, err
	}
	if !booking.FitsTemplate(slots, req.StartAt, req.EndAt) {
		return booking.Booking{}, booking.ErrConflict
	}

	var taken bool
	if err := tx.QueryRowContext(ctx, `
		select exists(select 1 from booking where court_id=$1 and status='booked' and start_at < $3 and end_at > $2)
	`, req.CourtID, req.StartAt, req.EndAt).Scan(&taken); err != nil {
		return booking.Booking{}, err
	}
	if taken {
		return booking.Booking{}, booking.ErrConflict
	}

	b := booking.Booking{
		ID:             ids.New(),
		UserID:         actor.ID,
		OwnerID:        ownerID,
		VenueID:        venueID,
		CourtID:        req.CourtID,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		AmountCents:    booking.QuoteAmountCents(price, req.StartAt, req.EndAt),
		PaymentStatus:  payment.StatusPending,
		Status:         booking.StatusBooked,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		VenueName:      venueName,
		CourtName:      courtName,
	}

	if s.settler != nil {
		settlement, err := s.settler.Settle(ctx, b.ID, b.AmountCents)
		if err != nil {
			return booking.Booking{}, err
		}
		b.PaymentStatus = settlement.Status
		b.PaymentMeta = settlement.Meta
	}

	var meta []byte
	if b.PaymentMeta != nil {
		meta, _ = json.Marshal(b.PaymentMeta)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into booking(id, user_id, owner_id, venue_id, court_id, start_at, end_at,
			amount_cents, payment_status, payment_meta, status, idempotency_key, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,nullif($12,''),$13)
	`, b.ID, b.UserID, b.OwnerID, b.VenueID, b.CourtID, b.StartAt, b.EndAt,
		b.AmountCents, string(b.PaymentStatus), meta, string(b.Status), b.IdempotencyKey, b.CreatedAt); err != nil {
		return booking.Booking{}, err
	}
	if err := insertHistory(ctx, tx, b.ID, booking.HistoryCreated, actor.ID, now); err != nil {
		return booking.Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return booking.Booking{}, err
	}
	return b, nil
}

func (s *Store) CancelBooking(ctx context.Context, actor auth.Actor, bookingID string) (booking.Booking, error) {
	if actor.Banned {
		return booking.Booking{}, booking.ErrBannedActor
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		userID   string
		status   string
		payState string
		amount   int64
		endAt    time.Time
	)
	err = tx.QueryRowContext(ctx, `
		select user_id, status, payment_status, amount_cents, end_at
		from booking where id=$1 for update
	`, bookingID).Scan(&userID, &status, &payState, &amount, &endAt)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}

	if s.policy == booking.CancelBookerOrAdmin && userID != actor.ID && !actor.IsAdmin() {
		return booking.Booking{}, booking.ErrForbidden
	}
	if booking.Status(status) == booking.StatusCancelled {
		return booking.Booking{}, booking.ErrAlreadyCancelled
	}
	if endAt.Before(now) {
		return booking.Booking{}, booking.ErrPastBooking
	}

	newPayState := payment.Status(payState)
	var newMeta map[string]string
	if s.settler != nil && newPayState == payment.StatusPaid {
		if settlement, err := s.settler.Refund(ctx, bookingID, amount); err == nil {
			newPayState = settlement.Status
			newMeta = settlement.Meta
		}
	}
	var meta []byte
	if newMeta != nil {
		meta, _ = json.Marshal(newMeta)
	}
	if _, err := tx.ExecContext(ctx, `
		update booking set status='cancelled', cancelled_by=$2, cancelled_at=$3,
			payment_status=$4, payment_meta=coalesce($5, payment_meta)
		where id=$1
	`, bookingID, actor.ID, now, string(newPayState), meta); err != nil {
		return booking.Booking{}, err
	}
	if err := insertHistory(ctx, tx, bookingID, booking.HistoryCancelled, actor.ID, now); err != nil {
		return booking.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return booking.Booking{}, err
	}
	return s.GetBooking(ctx, bookingID)
}

func (s *Store) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, `select `+bookingCols+` where b.id=$2`, s.now(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (s *Store) ListBookings(ctx context.Context, f booking.ListFilter) ([]booking.Booking, error) {
	query := `select ` + bookingCols + ` where ($2='' or b.user_id=$2) and ($3='' or b.owner_id=$3)
		and ($4='' or (case when b.status='booked' and b.end_at <= $1 then 'completed' else b.status end)=$4)
		order by b.start_at desc, b.id desc`
	rows, err := s.db.QueryContext(ctx, query, s.now(), f.UserID, f.OwnerID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, bookingID string) ([]booking.HistoryEntry, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from booking where id=$1)`, bookingID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, booking.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, booking_id, action, coalesce(performed_by,''), created_at
		from booking_history where booking_id=$1 order by created_at asc, id asc
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.HistoryEntry
	for rows.Next() {
		var e booking.HistoryEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Action, &e.PerformedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompleteExpired materializes the derived completed state for booked rows
// whose interval has elapsed. Idempotent; safe to run concurrently.
func (s *Store) CompleteExpired(ctx context.Context) (int, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		update booking set status='completed'
		where status='booked' and end_at <= $1
		returning id
	`, now)
	if err != nil {
		return 0, err
	}
	var swept []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		swept = append(swept, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range swept {
		if err := insertHistory(ctx, tx, id, booking.HistoryCompleted, "", now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(swept), nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, bookingID string, action booking.HistoryAction, actorID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		insert into booking_history(id, booking_id, action, performed_by, created_at)
		values ($1,$2,$3,nullif($4,''),$5)
	`, ids.New(), bookingID, string(action), actorID, at)
	return err
}
