package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
	"github.com/uhyunpark/hyperlicked/pkg/events"
	"github.com/uhyunpark/hyperlicked/pkg/ledger"
	"github.com/uhyunpark/hyperlicked/pkg/market"
	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
	"github.com/uhyunpark/hyperlicked/pkg/ratelimit"
	"github.com/uhyunpark/hyperlicked/pkg/shard"
)

func fifoAlgo(string) matching.Algorithm { return matching.FIFO{} }

func testPair() *market.TradingPairConfig {
	return &market.TradingPairConfig{
		Symbol:      "BTC-USDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		Status:      market.Trading,
		TickSize:    money.PriceFromRaw(1),
		LotSize:     money.QuantityFromRaw(1),
		MinQty:      money.QuantityFromFloat64(0.001),
		MaxQty:      money.QuantityFromInt(1000),
		MinNotional: money.PriceFromInt(1).MulQty(money.QuantityFromInt(1)),
		MakerFeeBps: -2,
		TakerFeeBps: 10,
	}
}

func newExchange(t *testing.T) (*Exchange, uuid.UUID, uuid.UUID) {
	t.Helper()
	reg := market.NewRegistry()
	pair := testPair()
	if err := reg.Register(pair); err != nil {
		t.Fatalf("register pair: %v", err)
	}

	lm := ledger.NewManager()
	buyer, seller := uuid.New(), uuid.New()
	lm.GetOrCreate(buyer)
	lm.GetOrCreate(seller)
	if err := lm.Deposit(buyer, pair.QuoteAsset, money.PriceFromInt(1_000_000).MulQty(money.QuantityFromInt(1))); err != nil {
		t.Fatalf("deposit buyer: %v", err)
	}
	if err := lm.Deposit(seller, pair.BaseAsset, money.PriceFromInt(100).MulQty(money.QuantityFromInt(1))); err != nil {
		t.Fatalf("deposit seller: %v", err)
	}

	sh := shard.New(shard.Config{ShardID: 0}, nil, fifoAlgo, nil)
	t.Cleanup(func() { sh.Shutdown(context.Background()) })

	ex := New(Config{
		Clock:    clock.NewSimulated(time.Unix(0, 0)),
		Registry: reg,
		Ledger:   lm,
		Limiter:  ratelimit.New(clock.Wall{}, ratelimit.DefaultConfig),
		Hub:      events.NewHub(clock.Wall{}, events.DefaultBufferSize),
		Shards:   []*shard.Shard{sh},
	})
	return ex, buyer, seller
}

func TestSubmitOrderMatchesRestingSellAndSettles(t *testing.T) {
	ex, buyer, seller := newExchange(t)
	ctx := context.Background()

	sellResult, err := ex.SubmitOrder(ctx, SubmitOrderRequest{
		ClientID:    "seller-client",
		AccountID:   seller,
		Symbol:      "BTC-USDT",
		Side:        order.Sell,
		Type:        order.Limit,
		TimeInForce: order.GTC,
		Quantity:    money.QuantityFromInt(1),
		Price:       money.PriceFromInt(100),
		HasPrice:    true,
	})
	if err != nil {
		t.Fatalf("submit resting sell: %v", err)
	}
	if len(sellResult.Trades) != 0 {
		t.Fatalf("resting sell should not trade immediately, got %d trades", len(sellResult.Trades))
	}

	buyResult, err := ex.SubmitOrder(ctx, SubmitOrderRequest{
		ClientID:    "buyer-client",
		AccountID:   buyer,
		Symbol:      "BTC-USDT",
		Side:        order.Buy,
		Type:        order.Limit,
		TimeInForce: order.GTC,
		Quantity:    money.QuantityFromInt(1),
		Price:       money.PriceFromInt(100),
		HasPrice:    true,
	})
	if err != nil {
		t.Fatalf("submit crossing buy: %v", err)
	}
	if len(buyResult.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(buyResult.Trades))
	}

	buyerAcct, err := ex.ledger.Get(buyer)
	if err != nil {
		t.Fatalf("get buyer account: %v", err)
	}
	if bal := buyerAcct.Balance("BTC"); bal.Available.Cmp(money.ZeroValue) <= 0 {
		t.Fatalf("buyer should have been credited BTC, got %+v", bal)
	}

	sellerAcct, err := ex.ledger.Get(seller)
	if err != nil {
		t.Fatalf("get seller account: %v", err)
	}
	if bal := sellerAcct.Balance("USDT"); bal.Available.Cmp(money.ZeroValue) <= 0 {
		t.Fatalf("seller should have been credited USDT, got %+v", bal)
	}
}

func TestSubmitOrderRejectsUnknownSymbol(t *testing.T) {
	ex, buyer, _ := newExchange(t)
	_, err := ex.SubmitOrder(context.Background(), SubmitOrderRequest{
		ClientID:  "buyer-client",
		AccountID: buyer,
		Symbol:    "ETH-USDT",
		Side:      order.Buy,
		Type:      order.Limit,
		Quantity:  money.QuantityFromInt(1),
		Price:     money.PriceFromInt(100),
		HasPrice:  true,
	})
	if err == nil {
		t.Fatal("expected an error for an unregistered symbol")
	}
}

func TestSubmitOrderRejectsMissingPriceOnLimit(t *testing.T) {
	ex, buyer, _ := newExchange(t)
	_, err := ex.SubmitOrder(context.Background(), SubmitOrderRequest{
		ClientID:  "buyer-client",
		AccountID: buyer,
		Symbol:    "BTC-USDT",
		Side:      order.Buy,
		Type:      order.Limit,
		Quantity:  money.QuantityFromInt(1),
	})
	if err == nil {
		t.Fatal("expected MissingPrice error for a limit order with no price")
	}
}

func TestSubmitOrderRestingWithNoFillsKeepsFullReservationLocked(t *testing.T) {
	ex, buyer, _ := newExchange(t)
	ctx := context.Background()

	before, err := ex.ledger.Get(buyer)
	if err != nil {
		t.Fatalf("get buyer: %v", err)
	}
	availableBefore := before.Balance("USDT").Available

	// Nothing to match against; the resting GTC buy stays open, so its
	// entire conservative reservation must remain locked rather than being
	// refunded early — it is still needed to cover the order if it fills
	// later.
	_, err = ex.SubmitOrder(ctx, SubmitOrderRequest{
		ClientID:    "buyer-client",
		AccountID:   buyer,
		Symbol:      "BTC-USDT",
		Side:        order.Buy,
		Type:        order.Limit,
		TimeInForce: order.GTC,
		Quantity:    money.QuantityFromInt(1),
		Price:       money.PriceFromInt(100),
		HasPrice:    true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	after, err := ex.ledger.Get(buyer)
	if err != nil {
		t.Fatalf("get buyer: %v", err)
	}
	bal := after.Balance("USDT")
	if bal.Available.Cmp(availableBefore) >= 0 {
		t.Fatal("submitting a resting buy should have locked funds out of available balance")
	}
	if bal.Locked.Cmp(money.ZeroValue) <= 0 {
		t.Fatal("an unfilled resting order's reservation must stay locked, not be released early")
	}
}

func TestCancelOrderUnknownReturnsNotFound(t *testing.T) {
	ex, _, _ := newExchange(t)
	_, err := ex.CancelOrder(context.Background(), "client", "BTC-USDT", uuid.New())
	if err == nil {
		t.Fatal("expected an error canceling an order that was never submitted")
	}
}

func TestCancelOrderUnlocksReservationAndPublishesEvent(t *testing.T) {
	ex, buyer, _ := newExchange(t)
	ctx := context.Background()

	sub := ex.hub.Register("watcher")
	defer ex.hub.Unregister("watcher")

	result, err := ex.SubmitOrder(ctx, SubmitOrderRequest{
		ClientID:    "buyer-client",
		AccountID:   buyer,
		Symbol:      "BTC-USDT",
		Side:        order.Buy,
		Type:        order.Limit,
		TimeInForce: order.GTC,
		Quantity:    money.QuantityFromInt(1),
		Price:       money.PriceFromInt(100),
		HasPrice:    true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	lockedAcct, err := ex.ledger.Get(buyer)
	if err != nil {
		t.Fatalf("get buyer: %v", err)
	}
	lockedBefore := lockedAcct.Balance("USDT").Locked

	if _, err := ex.CancelOrder(ctx, "buyer-client", "BTC-USDT", result.Order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	afterAcct, err := ex.ledger.Get(buyer)
	if err != nil {
		t.Fatalf("get buyer: %v", err)
	}
	if afterAcct.Balance("USDT").Locked.Cmp(lockedBefore) >= 0 {
		t.Fatal("canceling should have released the locked reservation")
	}

	var sawCancel bool
	drain := true
	for drain {
		select {
		case e := <-sub.Events():
			if e.Kind == events.KindOrderCanceled {
				sawCancel = true
			}
		default:
			drain = false
		}
	}
	if !sawCancel {
		t.Fatal("expected an OrderCanceled event to have been published")
	}
}

func TestGetDepthReturnsRestingLevels(t *testing.T) {
	ex, _, seller := newExchange(t)
	ctx := context.Background()

	if _, err := ex.SubmitOrder(ctx, SubmitOrderRequest{
		ClientID:    "seller-client",
		AccountID:   seller,
		Symbol:      "BTC-USDT",
		Side:        order.Sell,
		Type:        order.Limit,
		TimeInForce: order.GTC,
		Quantity:    money.QuantityFromInt(1),
		Price:       money.PriceFromInt(100),
		HasPrice:    true,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	depth, err := ex.GetDepth(ctx, "any-client", "BTC-USDT", 10)
	if err != nil {
		t.Fatalf("get depth: %v", err)
	}
	if len(depth.Asks) != 1 {
		t.Fatalf("expected one ask level, got %d", len(depth.Asks))
	}
}

func TestGetExchangeInfoListsRegisteredSymbols(t *testing.T) {
	ex, _, _ := newExchange(t)
	info, err := ex.GetExchangeInfo("any-client")
	if err != nil {
		t.Fatalf("get exchange info: %v", err)
	}
	if len(info.Symbols) != 1 || info.Symbols[0].Symbol != "BTC-USDT" {
		t.Fatalf("unexpected symbols: %+v", info.Symbols)
	}
}

func TestWithdrawalLifecycleReachesCompleted(t *testing.T) {
	ex, buyer, _ := newExchange(t)

	w, err := ex.CreateWithdrawal(buyer, "USDT", money.PriceFromInt(10).MulQty(money.QuantityFromInt(1)), money.ZeroValue, "addr-1")
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	if _, err := ex.AdvanceWithdrawal(w.ID, WithdrawalStep{Kind: WithdrawalStepStartProcessing}); err != nil {
		t.Fatalf("start processing: %v", err)
	}
	if _, err := ex.AdvanceWithdrawal(w.ID, WithdrawalStep{Kind: WithdrawalStepSubmitTransaction, TxReference: "0xabc"}); err != nil {
		t.Fatalf("submit transaction: %v", err)
	}
	final, err := ex.AdvanceWithdrawal(w.ID, WithdrawalStep{Kind: WithdrawalStepAddConfirmation})
	if err != nil {
		t.Fatalf("add confirmation: %v", err)
	}
	if final.Status != ledger.WithdrawalCompleted {
		t.Fatalf("expected withdrawal to complete with 1 required confirmation, got %s", final.Status)
	}
}

func TestWithdrawalFailureRefundsHold(t *testing.T) {
	ex, buyer, _ := newExchange(t)

	acctBefore, _ := ex.ledger.Get(buyer)
	lockedBefore := acctBefore.Balance("USDT").Locked

	w, err := ex.CreateWithdrawal(buyer, "USDT", money.PriceFromInt(10).MulQty(money.QuantityFromInt(1)), money.ZeroValue, "addr-1")
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	if _, err := ex.AdvanceWithdrawal(w.ID, WithdrawalStep{Kind: WithdrawalStepFail, Reason: "custodian rejected"}); err != nil {
		t.Fatalf("fail withdrawal: %v", err)
	}

	acctAfter, _ := ex.ledger.Get(buyer)
	lockedAfter := acctAfter.Balance("USDT").Locked
	if lockedAfter.Cmp(lockedBefore) != 0 {
		t.Fatalf("a failed withdrawal must fully refund its hold: before=%+v after=%+v", lockedBefore, lockedAfter)
	}
}
