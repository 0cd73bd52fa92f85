package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

var minutesPerHour = decimal.NewFromInt(60)

// QuoteAmountCents computes the charge for a window at an hourly rate,
// rounded half-up to integer minor units. All money stays in cents until
// presentation.
func QuoteAmountCents(pricePerHour decimal.Decimal, startAt, endAt time.Time) int64 {
	minutes := decimal.NewFromFloat(endAt.Sub(startAt).Minutes())
	hours := minutes.Div(minutesPerHour)
	return pricePerHour.Mul(hours).Shift(2).Round(0).IntPart()
}
