package payment

import (
	"context"
	"sync"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
	"github.com/stripe/stripe-go/v78/refund"
)

// Stripe settles charges through Stripe PaymentIntents. The core still treats
// the result as opaque; intent ids travel back in Settlement.Meta.
type Stripe struct {
	currency string

	mu      sync.Mutex
	intents map[string]string // bookingID -> payment intent id
}

// NewStripe configures the global Stripe key and returns a Settler.
func NewStripe(secretKey, currency string) *Stripe {
	stripe.Key = secretKey
	if currency == "" {
		currency = "usd"
	}
	return &Stripe{currency: currency, intents: make(map[string]string)}
}

func (s *Stripe) Settle(ctx context.Context, bookingID string, amountCents int64) (Settlement, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(s.currency),
		Params: stripe.Params{
			Context:  ctx,
			Metadata: map[string]string{"booking_id": bookingID},
		},
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return Settlement{}, ErrGatewayUnavailable
	}

	s.mu.Lock()
	s.intents[bookingID] = pi.ID
	s.mu.Unlock()

	status := StatusPending
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		status = StatusPaid
	}
	return Settlement{
		Status: status,
		Meta: map[string]string{
			"gateway":       "stripe",
			"intent_id":     pi.ID,
			"intent_status": string(pi.Status),
		},
	}, nil
}

func (s *Stripe) Refund(ctx context.Context, bookingID string, amountCents int64) (Settlement, error) {
	s.mu.Lock()
	intentID, ok := s.intents[bookingID]
	s.mu.Unlock()
	if !ok {
		return Settlement{Status: StatusFailed, Meta: map[string]string{"gateway": "stripe", "reason": "unknown charge"}}, nil
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountCents),
		Params:        stripe.Params{Context: ctx},
	}
	ref, err := refund.New(params)
	if err != nil {
		return Settlement{}, ErrGatewayUnavailable
	}
	return Settlement{
		Status: StatusRefunded,
		Meta: map[string]string{
			"gateway":   "stripe",
			"intent_id": intentID,
			"refund_id": ref.ID,
		},
	}, nil
}
