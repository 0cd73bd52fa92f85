package payment

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Simulated is the default settlement collaborator: every charge settles as
// paid immediately. Refunds only succeed for charges it has seen.
type Simulated struct {
	mu      sync.Mutex
	settled map[string]int64 // bookingID -> amount
}

func NewSimulated() *Simulated {
	return &Simulated{settled: make(map[string]int64)}
}

func (s *Simulated) Settle(ctx context.Context, bookingID string, amountCents int64) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	s.mu.Lock()
	s.settled[bookingID] = amountCents
	s.mu.Unlock()
	return Settlement{
		Status: StatusPaid,
		Meta: map[string]string{
			"gateway":      "simulated",
			"amount_cents": strconv.FormatInt(amountCents, 10),
			"settled_at":   time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (s *Simulated) Refund(ctx context.Context, bookingID string, amountCents int64) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	s.mu.Lock()
	_, ok := s.settled[bookingID]
	delete(s.settled, bookingID)
	s.mu.Unlock()
	if !ok {
		return Settlement{Status: StatusFailed, Meta: map[string]string{"gateway": "simulated", "reason": "unknown charge"}}, nil
	}
	return Settlement{
		Status: StatusRefunded,
		Meta: map[string]string{
			"gateway":      "simulated",
			"amount_cents": strconv.FormatInt(amountCents, 10),
		},
	}, nil
}
