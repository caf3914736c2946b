// Package matching implements the pluggable intra-level priority rule: how
// an aggressor's quantity is apportioned across resting orders at a single
// price level. Two variants are provided, price-time (FIFO) and pro-rata;
// a session binds exactly one for the lifetime of a shard.
package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
)

// Trade is the result of a single resting-order fill within a level match.
type Trade struct {
	Symbol       string
	Price        money.Price
	Quantity     money.Quantity
	BuyOrderID   uuid.UUID
	SellOrderID  uuid.UUID
	AggressorSide order.Side
	BuyerIsMaker bool
	Timestamp    time.Time
}

// Result is what a level match produces.
type Result struct {
	Trades         []Trade
	RemainingQty   money.Quantity
	FilledOrderIDs []uuid.UUID
}

// Algorithm decides how an aggressor is matched against a FIFO-ordered
// slice of resting orders at one price level. Implementations mutate both
// the aggressor and the resting orders' FilledQuantity/Status in place and
// report which resting orders must be evicted from the book.
type Algorithm interface {
	Name() string
	MatchAtLevel(aggressor *order.Order, resting []*order.Order, matchPrice money.Price, now time.Time) Result
}

func newTrade(symbol string, price money.Price, qty money.Quantity, aggressor *order.Order, resting *order.Order, now time.Time) Trade {
	var buy, sell uuid.UUID
	buyerIsMaker := false
	if aggressor.Side == order.Buy {
		buy, sell = aggressor.ID, resting.ID
	} else {
		buy, sell = resting.ID, aggressor.ID
		buyerIsMaker = true
	}
	return Trade{
		Symbol:        symbol,
		Price:         price,
		Quantity:      qty,
		BuyOrderID:    buy,
		SellOrderID:   sell,
		AggressorSide: aggressor.Side,
		BuyerIsMaker:  buyerIsMaker,
		Timestamp:     now,
	}
}

func minQty(a, b money.Quantity) money.Quantity {
	if a < b {
		return a
	}
	return b
}

// FIFO fills the front resting order to its remaining quantity, popping it
// once exhausted, and continues down the queue. Orders 100% respect
// arrival order: if A rests ahead of B at the same level, A fills first.
type FIFO struct{}

func (FIFO) Name() string { return "price-time" }

func (FIFO) MatchAtLevel(aggressor *order.Order, resting []*order.Order, matchPrice money.Price, now time.Time) Result {
	var res Result
	i := 0
	for aggressor.Remaining() > 0 && i < len(resting) {
		head := resting[i]
		fillQty := minQty(aggressor.Remaining(), head.Remaining())
		if fillQty <= 0 {
			break
		}

		res.Trades = append(res.Trades, newTrade(aggressor.Symbol, matchPrice, fillQty, aggressor, head, now))

		aggressor.ApplyFill(fillQty, now)
		head.ApplyFill(fillQty, now)

		if head.IsFilled() {
			res.FilledOrderIDs = append(res.FilledOrderIDs, head.ID)
			i++
		}
	}
	res.RemainingQty = aggressor.Remaining()
	return res
}

// ProRata allocates the aggressor's available quantity across resting
// orders in proportion to their size, with integer-rounding remainder
// assigned entirely to the first (oldest) order whose share passed the
// MinAllocation filter — a stable, if not perfectly fair, tie-break that
// the engine preserves deliberately. If every share is filtered out, the
// remainder is not allocated at this level.
type ProRata struct {
	// MinAllocation filters out dust allocations; orders whose computed
	// share falls below it receive zero.
	MinAllocation money.Quantity
}

func (ProRata) Name() string { return "pro-rata" }

func (p ProRata) MatchAtLevel(aggressor *order.Order, resting []*order.Order, matchPrice money.Price, now time.Time) Result {
	var res Result
	if len(resting) == 0 {
		res.RemainingQty = aggressor.Remaining()
		return res
	}

	var totalResting money.Quantity
	for _, o := range resting {
		totalResting = totalResting.Add(o.Remaining())
	}
	if totalResting == 0 {
		res.RemainingQty = aggressor.Remaining()
		return res
	}

	availableToFill := minQty(aggressor.Remaining(), totalResting)

	type allocation struct {
		idx int
		qty money.Quantity
	}
	allocations := make([]allocation, 0, len(resting))
	var allocatedTotal money.Quantity

	for idx, o := range resting {
		orderQty := o.Remaining()
		// floor((order_qty / total_resting) * available_to_fill), widened
		// through MulDivQty so the order_qty*available_to_fill product
		// cannot overflow int64 for large resting/aggressor quantities.
		alloc := orderQty.MulDivQty(availableToFill, totalResting)
		if alloc >= p.MinAllocation {
			allocations = append(allocations, allocation{idx: idx, qty: alloc})
			allocatedTotal = allocatedTotal.Add(alloc)
		}
	}

	remainder := availableToFill.SaturatingSub(allocatedTotal)
	if remainder > 0 && len(allocations) > 0 {
		allocations[0].qty = allocations[0].qty.Add(remainder)
	}

	filled := make(map[int]bool)
	for _, a := range allocations {
		if a.qty <= 0 {
			continue
		}
		resting_ := resting[a.idx]

		res.Trades = append(res.Trades, newTrade(aggressor.Symbol, matchPrice, a.qty, aggressor, resting_, now))

		aggressor.ApplyFill(a.qty, now)
		resting_.ApplyFill(a.qty, now)

		if resting_.IsFilled() {
			res.FilledOrderIDs = append(res.FilledOrderIDs, resting_.ID)
			filled[a.idx] = true
		}
	}

	res.RemainingQty = aggressor.Remaining()
	return res
}
