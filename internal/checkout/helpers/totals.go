package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Totals accumulates the count and amount of an order as lines are added.
type Totals struct {
	Count  int
	Amount decimal.Decimal
}

// LineAmount is count times the unit price.
func LineAmount(price decimal.Decimal, count int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(count)))
}

// Add folds one line into the running totals and returns its amount.
func (t *Totals) Add(price decimal.Decimal, count int) decimal.Decimal {
	amount := LineAmount(price, count)
	t.Count += count
	t.Amount = t.Amount.Add(amount)
	return amount
}

// PaymentAmount is the line total plus freight.
func (t Totals) PaymentAmount(freight decimal.Decimal) decimal.Decimal {
	return t.Amount.Add(freight)
}

// NewOrderID builds a readable, unique order id: the placement time to the
// second, the zero padded user id and a random suffix.
func NewOrderID(now time.Time, userID int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%09d%s", now.Format("20060102150405"), userID, suffix)
}
