// Package usecase composes the ledger, order-book shards, event
// publisher, rate limiter, and trading-pair registry into the
// simulator's externally-visible operations: SubmitOrder, CancelOrder,
// GetDepth, GetExchangeInfo, and the withdrawal lifecycle.
package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
	"github.com/uhyunpark/hyperlicked/pkg/events"
	"github.com/uhyunpark/hyperlicked/pkg/ledger"
	"github.com/uhyunpark/hyperlicked/pkg/market"
	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
	"github.com/uhyunpark/hyperlicked/pkg/orderbook"
	"github.com/uhyunpark/hyperlicked/pkg/ratelimit"
	"github.com/uhyunpark/hyperlicked/pkg/shard"
	"github.com/uhyunpark/hyperlicked/pkg/xerrors"
)

// TakerFeeUpperBoundBps bounds the conservative buy-side reservation: a
// resting GTC buy may ultimately take liquidity and pay the taker fee, so
// the reservation must cover the worst case, not the maker rate.
const TakerFeeUpperBoundBps = 10

// MarketBuyEstimateSlippageBps widens the conservative top-of-book
// estimate used to size a Market buy's reservation, since a market order
// walks the book and may execute above the best ask by the time the shard
// processes it.
const MarketBuyEstimateSlippageBps = 50

// Exchange is the use-case layer's single entry point.
type Exchange struct {
	log      *zap.Logger
	clk      clock.Clock
	registry *market.Registry
	ledger   *ledger.Manager
	limiter  *ratelimit.Limiter
	hub      *events.Hub
	store    *ledger.WithdrawalStore

	shards    []*shard.Shard
	shardByID func(symbol string, n int) int
}

// Config bundles the collaborators an Exchange is built from.
type Config struct {
	Log      *zap.Logger
	Clock    clock.Clock
	Registry *market.Registry
	Ledger   *ledger.Manager
	Limiter  *ratelimit.Limiter
	Hub      *events.Hub
	Shards   []*shard.Shard
}

// New builds an Exchange over an already-running set of shards.
func New(cfg Config) *Exchange {
	return &Exchange{
		log:       cfg.Log,
		clk:       cfg.Clock,
		registry:  cfg.Registry,
		ledger:    cfg.Ledger,
		limiter:   cfg.Limiter,
		hub:       cfg.Hub,
		store:     ledger.NewWithdrawalStore(cfg.Ledger),
		shards:    cfg.Shards,
		shardByID: func(symbol string, n int) int { return shard.Route(symbol, n) },
	}
}

func (e *Exchange) shardFor(symbol string) *shard.Shard {
	return e.shards[e.shardByID(symbol, len(e.shards))]
}

// Clock exposes the Exchange's injected time capability to collaborators
// (e.g. the strategy wire endpoint) that need to stamp outbound messages
// without reaching for ambient time themselves.
func (e *Exchange) Clock() clock.Clock { return e.clk }

// SubmitOrderRequest is the inbound command for SubmitOrder.
type SubmitOrderRequest struct {
	ClientID       string
	AccountID      uuid.UUID
	ClientOrderID  string
	Symbol         string
	Side           order.Side
	Type           order.Type
	TimeInForce    order.TimeInForce
	Quantity       money.Quantity
	Price          money.Price
	HasPrice       bool
	StopPrice      money.Price
	HasStopPrice   bool
	MarketTopPrice money.Price // best-available price used to size a Market order's reservation
}

// SubmitOrderResult is the outcome of a successful SubmitOrder call.
type SubmitOrderResult struct {
	Order  *order.Order
	Trades []matching.Trade
}

// SubmitOrder validates, reserves funds, routes to the owning shard, then
// settles fills and publishes events.
func (e *Exchange) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error) {
	weight := uint32(1)
	if r := e.limiter.CheckOrder(req.ClientID); !r.Allowed {
		return nil, xerrors.NewRateLimited(r.RetryAfter)
	}
	if r := e.limiter.CheckRequest(req.ClientID, weight); !r.Allowed {
		return nil, xerrors.NewRateLimited(r.RetryAfter)
	}

	pair, err := e.registry.Get(req.Symbol)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeSymbolNotFound, req.Symbol, err)
	}
	if pair.Status != market.Trading {
		return nil, xerrors.New(xerrors.CodeInvalidSymbol, "symbol is not in Trading status", nil)
	}
	if req.Type.RequiresPrice() && !req.HasPrice {
		return nil, xerrors.New(xerrors.CodeMissingPrice, req.Symbol, nil)
	}
	if req.Type.RequiresStopPrice() && !req.HasStopPrice {
		return nil, xerrors.New(xerrors.CodeMissingStopPrice, req.Symbol, nil)
	}

	validationPrice := req.Price
	if !req.HasPrice {
		validationPrice = req.MarketTopPrice
	}
	if err := pair.ValidateOrder(validationPrice, req.Quantity); err != nil {
		return nil, xerrors.New(xerrors.CodeValidationFailed, err.Error(), err)
	}

	reserveAsset, reserveAmount := e.reservationFor(req, pair)
	if err := e.ledger.Reserve(req.AccountID, reserveAsset, reserveAmount); err != nil {
		return nil, xerrors.New(xerrors.CodeAccountError, "insufficient balance to reserve order", err)
	}

	now := e.clk.Now()
	o := &order.Order{
		ID:            uuid.New(),
		ClientOrderID: req.ClientOrderID,
		AccountID:     req.AccountID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Quantity:      req.Quantity,
		Price:         req.Price,
		HasPrice:      req.HasPrice,
		StopPrice:     req.StopPrice,
		HasStopPrice:  req.HasStopPrice,
		Status:        order.New,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	e.hub.Publish(events.Event{Kind: events.KindOrderAccepted, Symbol: req.Symbol, Payload: events.OrderAccepted{OrderID: o.ID.String()}})

	trades, err := e.shardFor(req.Symbol).SubmitOrder(ctx, o, now)
	if err != nil {
		e.ledger.Unlock(req.AccountID, reserveAsset, reserveAmount)
		if errors.Is(err, shard.ErrShardShutdown) {
			return nil, xerrors.New(xerrors.CodeShardShutdown, req.Symbol, err)
		}
		if e.log != nil {
			e.log.Error("shard submit failed", zap.String("symbol", req.Symbol), zap.Error(err))
		}
		return nil, xerrors.New(xerrors.CodeInternal, "shard submit failed", err)
	}

	for _, tr := range trades {
		e.settleFill(o, tr, pair)
		e.hub.Publish(events.Event{
			Kind:   events.KindTradeExecuted,
			Symbol: req.Symbol,
			Payload: events.TradeExecuted{
				BuyOrderID:   tr.BuyOrderID.String(),
				SellOrderID:  tr.SellOrderID.String(),
				Price:        tr.Price.String(),
				Quantity:     tr.Quantity.String(),
				BuyerIsMaker: tr.BuyerIsMaker,
			},
		})
	}

	e.releaseUnneededReservation(req.AccountID, reserveAsset, reserveAmount, o, trades)

	e.publishTerminal(o)
	return &SubmitOrderResult{Order: o, Trades: trades}, nil
}

func (e *Exchange) publishTerminal(o *order.Order) {
	switch o.Status {
	case order.Canceled:
		e.hub.Publish(events.Event{Kind: events.KindOrderCanceled, Symbol: o.Symbol, Payload: events.OrderCanceled{OrderID: o.ID.String()}})
	case order.Rejected:
		e.hub.Publish(events.Event{Kind: events.KindOrderRejected, Symbol: o.Symbol, Payload: events.OrderRejected{OrderID: o.ID.String()}})
	}
}

// reservationFor computes the conservative reservation amount and asset
// for req against pair, per the reservation rule: a Buy locks
// price*quantity*(1+taker_fee_upper_bound) in the quote asset (using a
// slippage-widened top-of-book estimate for Market orders, since the fill
// price is not yet known); a Sell locks quantity in the base asset.
func (e *Exchange) reservationFor(req SubmitOrderRequest, pair *market.TradingPairConfig) (string, money.Value) {
	price := req.Price
	if !req.HasPrice {
		price = req.MarketTopPrice
	}
	return e.reservationAmount(req.Side, req.HasPrice, price, req.Quantity, pair)
}

// reservationAmount is the reservation formula in its reusable form, so
// CancelOrder can recompute exactly how much of a partially-filled resting
// order's hold is still attached to its remaining quantity.
func (e *Exchange) reservationAmount(side order.Side, hasPrice bool, price money.Price, qty money.Quantity, pair *market.TradingPairConfig) (string, money.Value) {
	if side == order.Sell {
		return pair.BaseAsset, money.PriceFromInt(1).MulQty(qty)
	}
	bufferBps := int64(TakerFeeUpperBoundBps)
	if !hasPrice {
		bufferBps += MarketBuyEstimateSlippageBps
	}
	notional := price.MulQty(qty)
	buffer := money.ValueFromRaw(notional.Int64() * bufferBps / 10000)
	return pair.QuoteAsset, notional.Add(buffer)
}

// consumedReservation sums the exact notional (fees excluded) actually
// consumed by trades, so the unused remainder of a
// conservative reservation can be released immediately rather than held
// until cancellation.
func (e *Exchange) consumedReservation(o *order.Order, trades []matching.Trade) money.Value {
	if o.Side == order.Sell {
		var total money.Quantity
		for _, tr := range trades {
			total = total.Add(tr.Quantity)
		}
		return money.PriceFromInt(1).MulQty(total)
	}
	// The buy-side reservation buffer only needs to cover the gap between
	// the conservative estimate and the notional actually locked by
	// Settle; the fee itself is debited straight out of available balance
	// (see settleFill), so it must not be double-subtracted here too.
	total := money.ZeroValue
	for _, tr := range trades {
		total = total.Add(tr.Price.MulQty(tr.Quantity))
	}
	return total
}

// releaseUnneededReservation unlocks whatever portion of reserveAmount is
// no longer needed. A terminal order (fully filled, canceled, rejected,
// expired) releases everything beyond what trades actually consumed. An
// order still resting with quantity left on the book keeps the slice of
// its reservation attached to that remaining quantity locked — only the
// slice proportional to what has already filled, net of what it actually
// consumed, comes back early.
func (e *Exchange) releaseUnneededReservation(accountID uuid.UUID, asset string, reserveAmount money.Value, o *order.Order, trades []matching.Trade) {
	consumed := e.consumedReservation(o, trades)

	if o.Status.IsTerminal() {
		if consumed.Cmp(reserveAmount) < 0 {
			e.ledger.Unlock(accountID, asset, reserveAmount.Sub(consumed))
		}
		return
	}

	var filled money.Quantity
	for _, tr := range trades {
		filled = filled.Add(tr.Quantity)
	}
	if filled.IsZero() || o.Quantity.IsZero() {
		return
	}
	reservedForFilled := money.ValueFromRaw(reserveAmount.Int64() * filled.Raw() / o.Quantity.Raw())
	if reservedForFilled.Cmp(consumed) > 0 {
		e.ledger.Unlock(accountID, asset, reservedForFilled.Sub(consumed))
	}
}

func (e *Exchange) settleFill(o *order.Order, tr matching.Trade, pair *market.TradingPairConfig) {
	isBuyer := tr.BuyOrderID == o.ID
	isMaker := (isBuyer && tr.BuyerIsMaker) || (!isBuyer && !tr.BuyerIsMaker)

	notional := tr.Price.MulQty(tr.Quantity)
	feeBps := pair.TakerFeeBps
	if isMaker {
		feeBps = pair.MakerFeeBps
	}
	fee := money.ValueFromRaw(notional.Int64() * feeBps / 10000)

	if isBuyer {
		// The fee is quoted in the same asset as the lock (quote) but
		// credited against a different asset (base), so Settle takes it
		// directly out of available balance rather than folding it into
		// the locked consumption — LockedAmount here is notional only.
		e.ledger.Settle(ledger.Fill{
			AccountID:    o.AccountID,
			LockedAsset:  pair.QuoteAsset,
			LockedAmount: notional,
			CreditAsset:  pair.BaseAsset,
			CreditAmount: money.PriceFromInt(1).MulQty(tr.Quantity),
			FeeAsset:     pair.QuoteAsset,
			FeeAmount:    fee,
			IsMaker:      isMaker,
		})
	} else {
		e.ledger.Settle(ledger.Fill{
			AccountID:    o.AccountID,
			LockedAsset:  pair.BaseAsset,
			LockedAmount: money.PriceFromInt(1).MulQty(tr.Quantity),
			CreditAsset:  pair.QuoteAsset,
			CreditAmount: notional,
			FeeAsset:     pair.QuoteAsset,
			FeeAmount:    fee,
			IsMaker:      isMaker,
		})
	}
}

// CancelOrder rate-limits, routes to the owning shard, and on success
// unlocks any residual reservation and publishes OrderCanceled.
func (e *Exchange) CancelOrder(ctx context.Context, clientID, symbol string, orderID uuid.UUID) (*order.Order, error) {
	if r := e.limiter.CheckRequest(clientID, 1); !r.Allowed {
		return nil, xerrors.NewRateLimited(r.RetryAfter)
	}
	now := e.clk.Now()
	o, err := e.shardFor(symbol).CancelOrder(ctx, symbol, orderID, now)
	if err != nil {
		if errors.Is(err, orderbook.ErrNotFound) {
			return nil, xerrors.New(xerrors.CodeOrderNotFound, orderID.String(), err)
		}
		if e.log != nil {
			e.log.Error("shard cancel failed", zap.String("symbol", symbol), zap.Error(err))
		}
		return nil, xerrors.New(xerrors.CodeInternal, "cancel failed", err)
	}

	if pair, perr := e.registry.Get(symbol); perr == nil {
		asset, amount := e.reservationAmount(o.Side, o.HasPrice, o.Price, o.Remaining(), pair)
		if amount.Cmp(money.ZeroValue) > 0 {
			e.ledger.Unlock(o.AccountID, asset, amount)
		}
	}

	e.hub.Publish(events.Event{Kind: events.KindOrderCanceled, Symbol: symbol, Payload: events.OrderCanceled{OrderID: o.ID.String()}})
	return o, nil
}

// DepthResult is the reply to GetDepth.
type DepthResult struct {
	Bids, Asks []orderbook.Level
	Sequence   uint64
}

// GetDepth rate-limits proportionally to the requested depth and returns
// a snapshot including the book's current sequence.
func (e *Exchange) GetDepth(ctx context.Context, clientID, symbol string, limit int) (*DepthResult, error) {
	weight := uint32(1)
	if limit > 20 {
		weight = uint32(limit / 20)
	}
	if r := e.limiter.CheckRequest(clientID, weight); !r.Allowed {
		return nil, xerrors.NewRateLimited(r.RetryAfter)
	}
	bids, asks, seq, err := e.shardFor(symbol).GetDepth(ctx, symbol, limit)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeInternal, "get depth failed", err)
	}
	return &DepthResult{Bids: bids, Asks: asks, Sequence: seq}, nil
}

// ExchangeInfo is the reply to GetExchangeInfo.
type ExchangeInfo struct {
	RateLimits ratelimit.Config
	Symbols    []*market.TradingPairConfig
}

// GetExchangeInfo assembles rate-limit descriptors and every registered
// trading pair's filter descriptors.
func (e *Exchange) GetExchangeInfo(clientID string) (*ExchangeInfo, error) {
	if r := e.limiter.CheckRequest(clientID, 1); !r.Allowed {
		return nil, xerrors.NewRateLimited(r.RetryAfter)
	}
	return &ExchangeInfo{RateLimits: e.limiter.Config(), Symbols: e.registry.List()}, nil
}

// CreateWithdrawal begins the withdrawal lifecycle: reserve amount+fee
// and record a Pending request.
func (e *Exchange) CreateWithdrawal(accountID uuid.UUID, asset string, amount, fee money.Value, destination string) (*ledger.WithdrawalRequest, error) {
	w, err := e.store.Create(accountID, asset, amount, fee, destination, e.clk.Now())
	if err != nil {
		return nil, xerrors.New(xerrors.CodeAccountError, "failed to reserve withdrawal hold", err)
	}
	e.publishWithdrawalStatus(w)
	return w, nil
}

// AdvanceWithdrawal drives one step of the withdrawal state machine
// forward per the Rust original's process_pending staging
// (start_processing, submit_transaction, add_confirmation), publishing
// the resulting status. Callers own deciding which step applies.
func (e *Exchange) AdvanceWithdrawal(id uuid.UUID, step WithdrawalStep) (*ledger.WithdrawalRequest, error) {
	w, err := e.store.Get(id)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeAccountError, "withdrawal not found", err)
	}
	now := e.clk.Now()
	switch step.Kind {
	case WithdrawalStepStartProcessing:
		err = w.StartProcessing(now)
	case WithdrawalStepSubmitTransaction:
		err = w.SubmitTransaction(step.TxReference, now)
	case WithdrawalStepAddConfirmation:
		err = w.AddConfirmation(now)
		if err == nil && w.Status.IsTerminal() {
			err = e.store.Finalize(id, now)
		}
	case WithdrawalStepFail:
		err = w.Fail(step.Reason, now)
		if err == nil {
			err = e.store.Refund(id)
		}
	case WithdrawalStepCancel:
		if !w.CanCancel() {
			return nil, xerrors.New(xerrors.CodeValidationFailed, "withdrawal is no longer cancelable", nil)
		}
		err = w.Cancel(now)
		if err == nil {
			err = e.store.Refund(id)
		}
	}
	if err != nil {
		return nil, xerrors.New(xerrors.CodeValidationFailed, "invalid withdrawal transition", err)
	}
	e.publishWithdrawalStatus(w)
	return w, nil
}

func (e *Exchange) publishWithdrawalStatus(w *ledger.WithdrawalRequest) {
	e.hub.Publish(events.Event{
		Kind:    events.KindWithdrawal,
		Payload: events.WithdrawalStatus{WithdrawalID: w.ID.String(), Status: w.Status.String()},
	})
}

// WithdrawalStepKind selects which withdrawal transition AdvanceWithdrawal
// applies.
type WithdrawalStepKind int

const (
	WithdrawalStepStartProcessing WithdrawalStepKind = iota
	WithdrawalStepSubmitTransaction
	WithdrawalStepAddConfirmation
	WithdrawalStepFail
	WithdrawalStepCancel
)

// WithdrawalStep carries the optional fields a given step needs.
type WithdrawalStep struct {
	Kind        WithdrawalStepKind
	TxReference string
	Reason      string
}

