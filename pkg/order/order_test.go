package order

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/money"
)

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell {
		t.Fatalf("Buy.Opposite() = %v, want Sell", Buy.Opposite())
	}
	if Sell.Opposite() != Buy {
		t.Fatalf("Sell.Opposite() = %v, want Buy", Sell.Opposite())
	}
}

func TestTypeRequiresPrice(t *testing.T) {
	cases := []struct {
		typ  Type
		want bool
	}{
		{Market, false},
		{Limit, true},
		{LimitMaker, true},
		{StopLoss, false},
		{StopLossLimit, true},
		{TakeProfit, false},
		{TakeProfitLimit, true},
	}
	for _, c := range cases {
		if got := c.typ.RequiresPrice(); got != c.want {
			t.Errorf("%v.RequiresPrice() = %v, want %v", c.typ, got, c.want)
		}
	}
}

func TestTypeRequiresStopPrice(t *testing.T) {
	cases := []struct {
		typ  Type
		want bool
	}{
		{Market, false},
		{Limit, false},
		{StopLoss, true},
		{StopLossLimit, true},
		{TakeProfit, true},
		{TakeProfitLimit, true},
	}
	for _, c := range cases {
		if got := c.typ.RequiresStopPrice(); got != c.want {
			t.Errorf("%v.RequiresStopPrice() = %v, want %v", c.typ, got, c.want)
		}
	}
}

func TestMarketNeverRests(t *testing.T) {
	if !Market.NeverRests() {
		t.Fatalf("Market.NeverRests() = false, want true")
	}
	if Limit.NeverRests() {
		t.Fatalf("Limit.NeverRests() = true, want false")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{Filled, Canceled, Rejected, Expired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%v.IsTerminal() = false, want true", s)
		}
	}
	nonTerminal := []Status{New, PartiallyFilled}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%v.IsTerminal() = true, want false", s)
		}
	}
}

func newTestOrder(qty money.Quantity) *Order {
	return &Order{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		Symbol:    "BTC-USDT",
		Side:      Buy,
		Type:      Limit,
		Quantity:  qty,
		Status:    New,
		CreatedAt: time.Unix(0, 0),
	}
}

func TestApplyFillPartialThenFull(t *testing.T) {
	o := newTestOrder(money.QuantityFromInt(10))
	at := time.Unix(1, 0)

	o.ApplyFill(money.QuantityFromInt(4), at)
	if o.Status != PartiallyFilled {
		t.Fatalf("status = %v, want PartiallyFilled", o.Status)
	}
	if o.Remaining() != money.QuantityFromInt(6) {
		t.Fatalf("remaining = %v, want 6", o.Remaining())
	}
	if o.IsFilled() {
		t.Fatalf("IsFilled() = true after partial fill")
	}

	o.ApplyFill(money.QuantityFromInt(6), at)
	if o.Status != Filled {
		t.Fatalf("status = %v, want Filled", o.Status)
	}
	if !o.IsFilled() {
		t.Fatalf("IsFilled() = false, want true")
	}
	if o.Remaining() != 0 {
		t.Fatalf("remaining = %v, want 0", o.Remaining())
	}
}

func TestApplyFillNoopOnceTerminal(t *testing.T) {
	o := newTestOrder(money.QuantityFromInt(5))
	o.Terminate(Canceled, time.Unix(1, 0))

	o.ApplyFill(money.QuantityFromInt(1), time.Unix(2, 0))
	if o.FilledQuantity != 0 {
		t.Fatalf("FilledQuantity = %v after fill on terminal order, want 0", o.FilledQuantity)
	}
	if o.Status != Canceled {
		t.Fatalf("status = %v, want Canceled to stick", o.Status)
	}
}

func TestTerminateIsOneWay(t *testing.T) {
	o := newTestOrder(money.QuantityFromInt(5))
	first := time.Unix(1, 0)
	o.Terminate(Canceled, first)
	if o.UpdatedAt != first {
		t.Fatalf("UpdatedAt = %v, want %v", o.UpdatedAt, first)
	}

	o.Terminate(Rejected, time.Unix(2, 0))
	if o.Status != Canceled {
		t.Fatalf("status moved from Canceled to %v, terminal transitions must be one-way", o.Status)
	}
	if o.UpdatedAt != first {
		t.Fatalf("UpdatedAt changed after a no-op terminate call")
	}
}

func TestTerminateRejectsNonTerminalStatus(t *testing.T) {
	o := newTestOrder(money.QuantityFromInt(5))
	o.Terminate(PartiallyFilled, time.Unix(1, 0))
	if o.Status != New {
		t.Fatalf("status = %v, want New (Terminate must reject a non-terminal target status)", o.Status)
	}
}
