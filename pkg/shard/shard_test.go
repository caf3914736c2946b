package shard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
)

func fifoAlgo(string) matching.Algorithm { return matching.FIFO{} }

func newOrder(side order.Side, price money.Price, qty money.Quantity) *order.Order {
	return &order.Order{
		ID:          uuid.New(),
		Symbol:      "BTCUSDT",
		Side:        side,
		Type:        order.Limit,
		TimeInForce: order.GTC,
		Price:       price,
		HasPrice:    true,
		Quantity:    qty,
		Status:      order.New,
	}
}

func TestSubmitAndCancel(t *testing.T) {
	s := New(Config{ShardID: 0}, nil, fifoAlgo, nil)
	defer s.Shutdown(context.Background())
	ctx := context.Background()
	now := time.Now()

	resting := newOrder(order.Sell, money.PriceFromInt(100), money.QuantityFromInt(1))
	if _, err := s.SubmitOrder(ctx, resting, now); err != nil {
		t.Fatalf("submit: %v", err)
	}

	canceled, err := s.CancelOrder(ctx, "BTCUSDT", resting.ID, now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != order.Canceled {
		t.Fatalf("expected Canceled, got %s", canceled.Status)
	}
}

func TestSubmitProducesTradesAndCallback(t *testing.T) {
	var gotSymbol string
	var gotCount int
	s := New(Config{ShardID: 0}, nil, fifoAlgo, func(symbol string, trades []matching.Trade) {
		gotSymbol = symbol
		gotCount = len(trades)
	})
	defer s.Shutdown(context.Background())
	ctx := context.Background()
	now := time.Now()

	maker := newOrder(order.Sell, money.PriceFromInt(100), money.QuantityFromInt(1))
	s.SubmitOrder(ctx, maker, now)

	taker := newOrder(order.Buy, money.PriceFromInt(100), money.QuantityFromInt(1))
	trades, err := s.SubmitOrder(ctx, taker, now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if gotSymbol != "BTCUSDT" || gotCount != 1 {
		t.Fatalf("onTrades callback not invoked correctly: symbol=%s count=%d", gotSymbol, gotCount)
	}
}

func TestGetDepthAndSequence(t *testing.T) {
	s := New(Config{ShardID: 0}, nil, fifoAlgo, nil)
	defer s.Shutdown(context.Background())
	ctx := context.Background()
	now := time.Now()

	s.SubmitOrder(ctx, newOrder(order.Buy, money.PriceFromInt(99), money.QuantityFromInt(1)), now)

	bids, _, seq, err := s.GetDepth(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("get depth: %v", err)
	}
	if len(bids) != 1 {
		t.Fatalf("bids = %d, want 1", len(bids))
	}
	if seq == 0 {
		t.Fatal("sequence should have advanced")
	}

	gotSeq, err := s.GetSequence(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	if gotSeq != seq {
		t.Fatalf("GetSequence = %d, want %d", gotSeq, seq)
	}

	unknownSeq, _ := s.GetSequence(ctx, "ETHUSDT")
	if unknownSeq != 0 {
		t.Fatalf("unknown symbol sequence should be 0, got %d", unknownSeq)
	}
}

func TestShutdownStopsAcceptingCommands(t *testing.T) {
	s := New(Config{ShardID: 0}, nil, fifoAlgo, nil)
	ctx := context.Background()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if s.IsAlive() {
		t.Fatal("shard should no longer be alive")
	}
	if _, err := s.SubmitOrder(ctx, newOrder(order.Buy, money.PriceFromInt(1), money.QuantityFromInt(1)), time.Now()); err != ErrShardShutdown {
		t.Fatalf("expected ErrShardShutdown, got %v", err)
	}
}

func TestRouteIsDeterministic(t *testing.T) {
	a := Route("BTCUSDT", 8)
	b := Route("BTCUSDT", 8)
	if a != b {
		t.Fatalf("Route must be deterministic for the same symbol and shard count")
	}
	if a < 0 || a >= 8 {
		t.Fatalf("Route out of range: %d", a)
	}
}
