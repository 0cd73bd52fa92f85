// Package payment is the boundary to the settlement collaborator. The core
// persists whatever the collaborator returns and never interprets gateway
// internals.
package payment

import (
	"context"
	"errors"
)

// Status is the settlement state reported by the collaborator.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// Settlement is the collaborator's verdict for a single charge. Meta is
// opaque gateway metadata, stored verbatim.
type Settlement struct {
	Status Status            `json:"status"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Settler settles a charge for a booking. Implementations must be safe for
// concurrent use.
type Settler interface {
	Settle(ctx context.Context, bookingID string, amountCents int64) (Settlement, error)
	Refund(ctx context.Context, bookingID string, amountCents int64) (Settlement, error)
}

var ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
