package helpers

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTotalsAccumulate(t *testing.T) {
	var totals Totals
	if amount := totals.Add(decimal.RequireFromString("19.90"), 3); !amount.Equal(decimal.RequireFromString("59.70")) {
		t.Fatalf("unexpected line amount %s", amount)
	}
	totals.Add(decimal.RequireFromString("0.10"), 1)

	if totals.Count != 4 {
		t.Fatalf("expected count 4, got %d", totals.Count)
	}
	if !totals.Amount.Equal(decimal.RequireFromString("59.80")) {
		t.Fatalf("unexpected amount %s", totals.Amount)
	}
	if pay := totals.PaymentAmount(decimal.RequireFromString("10")); !pay.Equal(decimal.RequireFromString("69.80")) {
		t.Fatalf("unexpected payment amount %s", pay)
	}
}

func TestNewOrderID(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)
	id := NewOrderID(now, 42)

	if !strings.HasPrefix(id, "20261018093005000000042") {
		t.Fatalf("unexpected prefix in %q", id)
	}
	if len(id) != 14+9+8 {
		t.Fatalf("unexpected length %d for %q", len(id), id)
	}
	if other := NewOrderID(now, 42); other == id {
		t.Fatalf("expected distinct ids for the same second, got %q twice", id)
	}
}
