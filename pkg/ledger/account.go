// Package ledger owns account balances and derivative positions and
// enforces conservation: every operation is atomic at the account
// granularity, and a non-negative invariant is re-asserted after every
// mutation.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/money"
)

// Balance is an asset's available/locked partition. Both are
// non-negative; available increases on deposit, decreases on withdraw or
// reservation; locked increases on reservation and decreases on unlock or
// settlement.
type Balance struct {
	Available money.Value
	Locked    money.Value
}

// Position is an open derivative position in one symbol.
type Position struct {
	Symbol      string
	Side        Side
	Quantity    money.Quantity
	EntryPrice  money.Price
	MarkPrice   money.Price
	Margin      money.Value
	RealizedPnL money.Value
	CreatedAt   time.Time
}

// Side of a derivative position.
type Side int8

const (
	Long Side = iota
	Short
)

// IsOpen reports whether the position carries nonzero size.
func (p *Position) IsOpen() bool { return p.Quantity > 0 }

// UnrealizedPnL computes quantity * (mark - entry), negated for Short.
func (p *Position) UnrealizedPnL() money.Value {
	diff := p.MarkPrice.Sub(p.EntryPrice)
	pnl := diff.MulQty(p.Quantity)
	if p.Side == Short {
		pnl = pnl.Neg()
	}
	return pnl
}

// MarginRatio returns margin as a fraction of notional, expressed in basis
// points (margin/notional * 10000).
func (p *Position) MarginRatio() int64 {
	notional := p.MarkPrice.MulQty(p.Quantity)
	if notional.IsZero() {
		return 0
	}
	// margin and notional are both Value; ratio computed via raw ints
	// since margin is always far smaller than int64 range for realistic
	// session sizes.
	return p.Margin.Int64() * 10000 / notional.Int64()
}

// ShouldLiquidate reports whether mark has crossed the liquidation price
// implied by entry, margin, and maintenanceMarginBps.
func (p *Position) ShouldLiquidate(maintenanceMarginBps int64) bool {
	if !p.IsOpen() {
		return false
	}
	notional := p.MarkPrice.MulQty(p.Quantity)
	maintenance := money.ValueFromRaw(notional.Int64() * maintenanceMarginBps / 10000)
	equity := p.Margin.Add(p.UnrealizedPnL())
	return equity.Cmp(maintenance) < 0
}

// Account is a single account's multi-asset ledger plus its open
// derivative positions. Every mutating method must be called with the
// account's lock held — Manager is responsible for that serialization.
type Account struct {
	ID        uuid.UUID
	mu        sync.Mutex
	balances  map[string]*Balance
	positions map[string]*Position

	TotalFeesPaid   money.Value
	TotalFeesEarned money.Value
	TotalVolume     money.Value
	TradeCount      int64
}

func newAccount(id uuid.UUID) *Account {
	return &Account{
		ID:        id,
		balances:  make(map[string]*Balance),
		positions: make(map[string]*Position),
	}
}

func (a *Account) balance(asset string) *Balance {
	b, ok := a.balances[asset]
	if !ok {
		b = &Balance{}
		a.balances[asset] = b
	}
	return b
}

// Balance returns a snapshot of an asset's balance (zero value if unset).
func (a *Account) Balance(asset string) Balance {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.balance(asset)
}

// Position returns the account's position in symbol, or nil if none.
func (a *Account) Position(symbol string) *Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol]
}

// Positions returns a snapshot slice of every open position.
func (a *Account) Positions() []*Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out
}
