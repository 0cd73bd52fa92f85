package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/payment"
	"quickcourt.org/internal/reporting"
	"quickcourt.org/internal/workflow"
)

// Store is the durable implementation of the booking, workflow and reporting
// services over postgres. One Store serves all three; they share a schema and
// a pool.
type Store struct {
	db      *sql.DB
	settler payment.Settler
	policy  booking.CancelPolicy
	now     func() time.Time
}

var (
	_ booking.Service   = (*Store)(nil)
	_ booking.Catalog   = (*Store)(nil)
	_ workflow.Service  = (*Store)(nil)
	_ reporting.Service = (*Store)(nil)
)

func Open(dsn string, settler payment.Settler, policy booking.CancelPolicy) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewWithDB(db, settler, policy), nil
}

// NewWithDB wraps an existing pool. Tests use it with a mock driver.
func NewWithDB(db *sql.DB, settler payment.Settler, policy booking.CancelPolicy) *Store {
	return &Store{
		db:      db,
		settler: settler,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the clock. Tests only.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }
