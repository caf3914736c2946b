package orderbook

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
)

func newOrder(side order.Side, typ order.Type, tif order.TimeInForce, price money.Price, qty money.Quantity) *order.Order {
	return &order.Order{
		ID:          uuid.New(),
		Symbol:      "BTCUSDT",
		Side:        side,
		Type:        typ,
		TimeInForce: tif,
		Price:       price,
		HasPrice:    typ != order.Market,
		Quantity:    qty,
		Status:      order.New,
	}
}

func TestMakerThenTaker(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	maker := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(50000), money.QuantityFromInt(1))
	if _, err := book.Submit(maker, now); err != nil {
		t.Fatalf("maker submit: %v", err)
	}
	if maker.Status != order.New {
		t.Fatalf("maker should rest as New, got %s", maker.Status)
	}

	taker := newOrder(order.Buy, order.Limit, order.GTC, money.PriceFromInt(50000), money.QuantityFromInt(1))
	trades, err := book.Submit(taker, now)
	if err != nil {
		t.Fatalf("taker submit: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Price != money.PriceFromInt(50000) || tr.Quantity != money.QuantityFromInt(1) {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if tr.BuyerIsMaker {
		t.Fatalf("buyer is the taker here, BuyerIsMaker should be false")
	}
	if taker.Status != order.Filled || maker.Status != order.Filled {
		t.Fatalf("both orders should be Filled, got taker=%s maker=%s", taker.Status, maker.Status)
	}
}

func TestLimitMakerRejectsOnCross(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	resting := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	book.Submit(resting, now)

	pm := newOrder(order.Buy, order.LimitMaker, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	_, err := book.Submit(pm, now)
	if err != ErrWouldCross {
		t.Fatalf("expected ErrWouldCross, got %v", err)
	}
}

func TestIOCCancelsRemainder(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	resting := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	book.Submit(resting, now)

	ioc := newOrder(order.Buy, order.Limit, order.IOC, money.PriceFromInt(100), money.QuantityFromInt(5))
	trades, err := book.Submit(ioc, now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if ioc.Status != order.Canceled {
		t.Fatalf("IOC remainder should be canceled, got %s", ioc.Status)
	}
	if _, err := book.Get(ioc.ID); err != ErrNotFound {
		t.Fatalf("IOC should never rest on the book")
	}
}

func TestFOKRejectsWithoutMutationWhenUnfillable(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	resting := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	book.Submit(resting, now)
	seqBefore := book.Sequence()

	fok := newOrder(order.Buy, order.Limit, order.FOK, money.PriceFromInt(100), money.QuantityFromInt(5))
	_, err := book.Submit(fok, now)
	if err != ErrFOKUnfillable {
		t.Fatalf("expected ErrFOKUnfillable, got %v", err)
	}
	if book.Sequence() != seqBefore {
		t.Fatalf("FOK rejection must not mutate book state")
	}
	if resting.FilledQuantity != 0 {
		t.Fatalf("resting order must be untouched by a rejected FOK")
	}
}

func TestFOKFillsCompletelyWhenPossible(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	resting := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(10))
	book.Submit(resting, now)

	fok := newOrder(order.Buy, order.Limit, order.FOK, money.PriceFromInt(100), money.QuantityFromInt(5))
	trades, err := book.Submit(fok, now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != money.QuantityFromInt(5) {
		t.Fatalf("unexpected trades: %+v", trades)
	}
	if fok.Status != order.Filled {
		t.Fatalf("FOK should be Filled, got %s", fok.Status)
	}
}

func TestSequenceMonotonicity(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	a := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	book.Submit(a, now)
	s1 := book.Sequence()

	b := newOrder(order.Buy, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	book.Submit(b, now)
	s2 := book.Sequence()

	if s2 <= s1 {
		t.Fatalf("sequence must strictly increase: %d -> %d", s1, s2)
	}
}

func TestCancelResting(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	resting := newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(100), money.QuantityFromInt(1))
	book.Submit(resting, now)

	canceled, err := book.Cancel(resting.ID, now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != order.Canceled {
		t.Fatalf("expected Canceled, got %s", canceled.Status)
	}
	if _, err := book.Cancel(resting.ID, now); err != ErrNotFound {
		t.Fatalf("double-cancel should report ErrNotFound, got %v", err)
	}
}

func TestDepthOrdering(t *testing.T) {
	book := New("BTCUSDT", matching.FIFO{})
	now := time.Now()

	book.Submit(newOrder(order.Buy, order.Limit, order.GTC, money.PriceFromInt(99), money.QuantityFromInt(1)), now)
	book.Submit(newOrder(order.Buy, order.Limit, order.GTC, money.PriceFromInt(101), money.QuantityFromInt(1)), now)
	book.Submit(newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(105), money.QuantityFromInt(1)), now)
	book.Submit(newOrder(order.Sell, order.Limit, order.GTC, money.PriceFromInt(103), money.QuantityFromInt(1)), now)

	bids, asks, _ := book.Depth(10)
	if bids[0].Price != money.PriceFromInt(101) {
		t.Fatalf("best bid should be highest price first, got %s", bids[0].Price)
	}
	if asks[0].Price != money.PriceFromInt(103) {
		t.Fatalf("best ask should be lowest price first, got %s", asks[0].Price)
	}
}
