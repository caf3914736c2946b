// Package orderbook implements a single symbol's order book: heap-tracked
// best bid/ask, per-price FIFO level queues, and the submission algorithm
// that walks the opposite side applying a pluggable matching.Algorithm.
//
// A Book is owned by exactly one shard goroutine (see pkg/shard) and is
// never locked internally — concurrency is achieved by routing every
// operation on a symbol to the same shard, not by synchronizing the book.
package orderbook

import (
	"container/heap"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
)

var (
	// ErrWouldCross is returned by Submit for a LimitMaker order whose
	// price would immediately cross the book.
	ErrWouldCross = errors.New("orderbook: order would cross the book")
	// ErrFOKUnfillable is returned by Submit for a FOK order that cannot
	// be filled in full at submission time; no state is mutated.
	ErrFOKUnfillable = errors.New("orderbook: fill-or-kill order not fully fillable")
	// ErrNotFound is returned by Cancel/Get for an unknown order id.
	ErrNotFound = errors.New("orderbook: order not found")
)

// Level aggregates a price for depth reporting.
type Level struct {
	Price    money.Price
	Quantity money.Quantity
}

// Book is a single symbol's order book.
type Book struct {
	Symbol string
	algo   matching.Algorithm

	bids    map[money.Price][]*order.Order
	asks    map[money.Price][]*order.Order
	bidHeap maxPriceHeap
	askHeap minPriceHeap

	index map[uuid.UUID]location

	sequence  uint64
	lastPrice money.Price
}

type location struct {
	side  order.Side
	price money.Price
}

// New creates an empty book for symbol using algo as its matching
// algorithm for the lifetime of the book.
func New(symbol string, algo matching.Algorithm) *Book {
	b := &Book{
		Symbol: symbol,
		algo:   algo,
		bids:   make(map[money.Price][]*order.Order),
		asks:   make(map[money.Price][]*order.Order),
		index:  make(map[uuid.UUID]location),
	}
	heap.Init(&b.bidHeap)
	heap.Init(&b.askHeap)
	return b
}

// Sequence returns the book's current monotonic mutation counter.
func (b *Book) Sequence() uint64 { return b.sequence }

func (b *Book) bestBid() (money.Price, bool) { return b.bidHeap.Peek() }
func (b *Book) bestAsk() (money.Price, bool) { return b.askHeap.Peek() }

func (b *Book) levelFor(side order.Side, price money.Price) []*order.Order {
	if side == order.Buy {
		return b.bids[price]
	}
	return b.asks[price]
}

func (b *Book) addResting(o *order.Order, now time.Time) {
	b.sequence++
	o.Sequence = b.sequence
	loc := location{side: o.Side, price: o.Price}
	b.index[o.ID] = loc
	if o.Side == order.Buy {
		if len(b.bids[o.Price]) == 0 {
			heap.Push(&b.bidHeap, o.Price)
		}
		b.bids[o.Price] = append(b.bids[o.Price], o)
	} else {
		if len(b.asks[o.Price]) == 0 {
			heap.Push(&b.askHeap, o.Price)
		}
		b.asks[o.Price] = append(b.asks[o.Price], o)
	}
}

func (b *Book) removeFilled(side order.Side, price money.Price, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
		delete(b.index, id)
	}
	level := b.levelFor(side, price)
	kept := level[:0]
	for _, o := range level {
		if !want[o.ID] {
			kept = append(kept, o)
		}
	}
	b.setLevel(side, price, kept)
	b.sequence++
}

func (b *Book) setLevel(side order.Side, price money.Price, level []*order.Order) {
	if side == order.Buy {
		if len(level) == 0 {
			delete(b.bids, price)
			b.removeFromHeap(&b.bidHeap, price)
		} else {
			b.bids[price] = level
		}
		return
	}
	if len(level) == 0 {
		delete(b.asks, price)
		b.removeFromHeap(&b.askHeap, price)
	} else {
		b.asks[price] = level
	}
}

func (b *Book) removeFromHeap(h interface{}, price money.Price) {
	switch hh := h.(type) {
	case *maxPriceHeap:
		for i, p := range *hh {
			if p == price {
				heap.Remove(hh, i)
				return
			}
		}
	case *minPriceHeap:
		for i, p := range *hh {
			if p == price {
				heap.Remove(hh, i)
				return
			}
		}
	}
}

// fillableAgainst reports whether qty can be fully absorbed by the
// opposite side within the given limit bound (hasLimit false means no
// bound, i.e. a market order), without mutating any state. It is used to
// pre-check fill-or-kill orders before committing a single trade.
func (b *Book) fillableAgainst(side order.Side, limit money.Price, hasLimit bool, qty money.Quantity) bool {
	var remaining = qty
	if side == order.Buy {
		prices := append([]money.Price(nil), b.askHeap...)
		sortAsc(prices)
		for _, p := range prices {
			if hasLimit && p > limit {
				break
			}
			remaining = remaining.SaturatingSub(levelQty(b.asks[p]))
			if remaining <= 0 {
				return true
			}
		}
	} else {
		prices := append([]money.Price(nil), b.bidHeap...)
		sortDesc(prices)
		for _, p := range prices {
			if hasLimit && p < limit {
				break
			}
			remaining = remaining.SaturatingSub(levelQty(b.bids[p]))
			if remaining <= 0 {
				return true
			}
		}
	}
	return remaining <= 0
}

func levelQty(level []*order.Order) money.Quantity {
	var total money.Quantity
	for _, o := range level {
		total = total.Add(o.Remaining())
	}
	return total
}

func sortAsc(p []money.Price) {
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && p[j-1] > p[j]; j-- {
			p[j-1], p[j] = p[j], p[j-1]
		}
	}
}

func sortDesc(p []money.Price) {
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && p[j-1] < p[j]; j-- {
			p[j-1], p[j] = p[j], p[j-1]
		}
	}
}

// Submit runs the submission algorithm for o: match against the opposite
// side in priority order until the aggressor is exhausted, the opposite
// side is empty, or the next resting price is worse than o's limit; then
// dispose of any remainder per o's type and time-in-force.
func (b *Book) Submit(o *order.Order, now time.Time) ([]matching.Trade, error) {
	opposite := o.Side.Opposite()
	hasLimit := o.HasPrice && o.Type != order.Market

	if o.Type == order.LimitMaker {
		if best, ok := b.bestOpposite(opposite); ok && crosses(o.Side, o.Price, best) {
			return nil, ErrWouldCross
		}
	}

	if o.TimeInForce == order.FOK {
		if !b.fillableAgainst(opposite, o.Price, hasLimit, o.Remaining()) {
			return nil, ErrFOKUnfillable
		}
	}

	var trades []matching.Trade
	for o.Remaining() > 0 {
		best, ok := b.bestOpposite(opposite)
		if !ok {
			break
		}
		if hasLimit && !crosses(o.Side, o.Price, best) {
			break
		}

		level := b.levelFor(opposite, best)
		if len(level) == 0 {
			b.setLevel(opposite, best, nil)
			continue
		}

		res := b.algo.MatchAtLevel(o, level, best, now)
		trades = append(trades, res.Trades...)
		if len(res.Trades) > 0 {
			b.sequence++
			b.lastPrice = best
		}
		b.removeFilled(opposite, best, res.FilledOrderIDs)

		if len(res.Trades) == 0 {
			break
		}
	}

	b.disposeRemainder(o, now)
	return trades, nil
}

// bestOpposite returns the best resting price on side.
func (b *Book) bestOpposite(side order.Side) (money.Price, bool) {
	if side == order.Buy {
		return b.bestBid()
	}
	return b.bestAsk()
}

// crosses reports whether an order of side at price would cross against a
// resting best price on the opposite side.
func crosses(side order.Side, price money.Price, oppositeBest money.Price) bool {
	if side == order.Buy {
		return price >= oppositeBest
	}
	return price <= oppositeBest
}

func (b *Book) disposeRemainder(o *order.Order, now time.Time) {
	if o.Remaining() == 0 {
		o.Terminate(order.Filled, now)
		return
	}
	switch {
	case o.Type.NeverRests(), o.TimeInForce == order.IOC, o.Type == order.LimitMaker:
		o.Terminate(order.Canceled, now)
	case o.TimeInForce == order.FOK:
		// unreachable: fillableAgainst guarantees full fill, but guard
		// against a future matching.Algorithm that undershoots.
		o.Terminate(order.Canceled, now)
	default: // GTC: rests
		b.addResting(o, now)
		if o.FilledQuantity > 0 {
			o.Status = order.PartiallyFilled
		} else {
			o.Status = order.New
		}
	}
}

// Cancel removes a resting order by id. Returns ErrNotFound if the order
// is not resting (already terminal, or unknown).
func (b *Book) Cancel(id uuid.UUID, now time.Time) (*order.Order, error) {
	loc, ok := b.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	level := b.levelFor(loc.side, loc.price)
	for i, o := range level {
		if o.ID != id {
			continue
		}
		kept := append(level[:i:i], level[i+1:]...)
		b.setLevel(loc.side, loc.price, kept)
		delete(b.index, id)
		b.sequence++
		o.Terminate(order.Canceled, now)
		return o, nil
	}
	return nil, ErrNotFound
}

// Get returns a resting order by id.
func (b *Book) Get(id uuid.UUID) (*order.Order, error) {
	loc, ok := b.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, o := range b.levelFor(loc.side, loc.price) {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

// Depth returns up to limit aggregated levels per side, best-first, along
// with the book's current sequence.
func (b *Book) Depth(limit int) (bids, asks []Level, sequence uint64) {
	bids = aggregate(b.bids, b.bidHeap, limit, true)
	asks = aggregate(b.asks, b.askHeap, limit, false)
	return bids, asks, b.sequence
}

func aggregate(levels map[money.Price][]*order.Order, prices []money.Price, limit int, desc bool) []Level {
	sorted := append([]money.Price(nil), prices...)
	if desc {
		sortDesc(sorted)
	} else {
		sortAsc(sorted)
	}
	out := make([]Level, 0, len(sorted))
	for _, p := range sorted {
		if limit > 0 && len(out) >= limit {
			break
		}
		qty := levelQty(levels[p])
		if qty <= 0 {
			continue
		}
		out = append(out, Level{Price: p, Quantity: qty})
	}
	return out
}

// LastPrice returns the price of the most recent trade, 0 if none yet.
func (b *Book) LastPrice() money.Price { return b.lastPrice }
