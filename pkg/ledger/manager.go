package ledger

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/money"
)

var (
	// ErrInsufficientBalance is returned when a withdraw or reserve would
	// drive available below zero.
	ErrInsufficientBalance = errors.New("ledger: insufficient available balance")
	// ErrInsufficientLocked is returned when an unlock or settlement would
	// drive locked below zero.
	ErrInsufficientLocked = errors.New("ledger: insufficient locked balance")
	// ErrInvalidAmount is returned for a zero or negative amount argument.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrAccountNotFound is returned by lookups against an unknown account id.
	ErrAccountNotFound = errors.New("ledger: account not found")
)

// Fill is one side of a trade settlement: the account gives up lockedAsset
// (consumed from locked) and receives creditAsset (added to available),
// net of a fee taken from the credited side.
type Fill struct {
	AccountID    uuid.UUID
	LockedAsset  string
	LockedAmount money.Value
	CreditAsset  string
	CreditAmount money.Value
	FeeAsset     string
	FeeAmount    money.Value
	IsMaker      bool
}

// Manager owns every account in the simulation. It is the sole mutator of
// balances and positions; pkg/usecase calls through it so that every
// balance change funnels through one conservation-checked surface.
//
// Concurrency: the top-level map is guarded by an RWMutex for lookup/create
// only. Once an *Account is obtained, its own mutex serializes concurrent
// mutation of that one account — two different accounts can be mutated
// fully in parallel, mirroring the teacher's per-address account map but
// replacing its single coarse lock with per-account granularity, since the
// spec routes trades through many concurrently-executing shards that may
// touch distinct accounts at once.
type Manager struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account

	withdrawalsMu sync.Mutex
	withdrawals   map[uuid.UUID]*WithdrawalRequest
}

// NewManager creates an empty account ledger.
func NewManager() *Manager {
	return &Manager{
		accounts:    make(map[uuid.UUID]*Account),
		withdrawals: make(map[uuid.UUID]*WithdrawalRequest),
	}
}

// GetOrCreate returns the account for id, creating it if this is the first
// reference.
func (m *Manager) GetOrCreate(id uuid.UUID) *Account {
	m.mu.RLock()
	a, ok := m.accounts[id]
	m.mu.RUnlock()
	if ok {
		return a
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok = m.accounts[id]; ok {
		return a
	}
	a = newAccount(id)
	m.accounts[id] = a
	return a
}

// Get returns an existing account, or ErrAccountNotFound.
func (m *Manager) Get(id uuid.UUID) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// List returns every account.
func (m *Manager) List() []*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out
}

// Count returns the number of accounts known to the ledger.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

func positiveValue(v money.Value) bool { return v.Cmp(money.ZeroValue) > 0 }

// Deposit credits available balance. Used for simulated funding — there is
// no external custody to reconcile against.
func (m *Manager) Deposit(id uuid.UUID, asset string, amount money.Value) error {
	if !positiveValue(amount) {
		return ErrInvalidAmount
	}
	a := m.GetOrCreate(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	b.Available = b.Available.Add(amount)
	return nil
}

// Withdraw debits available balance directly (used by callers that have
// already verified sufficiency outside a withdrawal-request flow, e.g.
// test fixtures or internal fee sweeps). The WithdrawalRequest flow uses
// Reserve instead, since a pending withdrawal must hold funds locked while
// it is in flight.
func (m *Manager) Withdraw(id uuid.UUID, asset string, amount money.Value) error {
	if !positiveValue(amount) {
		return ErrInvalidAmount
	}
	a := m.GetOrCreate(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	if b.Available.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Available = b.Available.Sub(amount)
	return nil
}

// Reserve moves amount from available to locked — used both for order
// margin holds and for a withdrawal request's in-flight hold.
func (m *Manager) Reserve(id uuid.UUID, asset string, amount money.Value) error {
	if !positiveValue(amount) {
		return ErrInvalidAmount
	}
	a := m.GetOrCreate(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	if b.Available.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return nil
}

// Unlock moves amount from locked back to available. The simulator has no
// external custodian to cross-check against, so rather than reject a
// caller that asks to unlock more than is actually held (a sign of a bug
// upstream, not a balance the account can conjure), Unlock clamps the
// release to whatever is actually locked and reports the clamp so the
// caller can log it — failing loudly would halt a deterministic replay
// over a bookkeeping slip that does not affect solvency.
func (m *Manager) Unlock(id uuid.UUID, asset string, amount money.Value) (released money.Value, clamped bool, err error) {
	if !positiveValue(amount) {
		return money.ZeroValue, false, ErrInvalidAmount
	}
	a := m.GetOrCreate(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balance(asset)
	if b.Locked.Cmp(amount) < 0 {
		released = b.Locked
		clamped = true
	} else {
		released = amount
	}
	b.Locked = b.Locked.Sub(released)
	b.Available = b.Available.Add(released)
	return released, clamped, nil
}

// Settle applies both sides of a trade atomically per account: the locked
// hold is consumed, and the counter-asset is credited net of fee. Maker and
// taker fills are applied independently (each call settles one account's
// side of one trade); pkg/usecase is responsible for calling it once per
// side per trade.
func (m *Manager) Settle(f Fill) error {
	a := m.GetOrCreate(f.AccountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	if positiveValue(f.LockedAmount) {
		lb := a.balance(f.LockedAsset)
		if lb.Locked.Cmp(f.LockedAmount) < 0 {
			return ErrInsufficientLocked
		}
		lb.Locked = lb.Locked.Sub(f.LockedAmount)
	}

	if positiveValue(f.CreditAmount) {
		cb := a.balance(f.CreditAsset)
		credit := f.CreditAmount
		if positiveValue(f.FeeAmount) && f.FeeAsset == f.CreditAsset {
			credit = credit.Sub(f.FeeAmount)
			a.TotalFeesPaid = a.TotalFeesPaid.Add(f.FeeAmount)
		}
		cb.Available = cb.Available.Add(credit)
	}

	if positiveValue(f.FeeAmount) && f.FeeAsset != f.CreditAsset {
		fb := a.balance(f.FeeAsset)
		fb.Available = fb.Available.Sub(f.FeeAmount)
		a.TotalFeesPaid = a.TotalFeesPaid.Add(f.FeeAmount)
	}

	a.TotalVolume = a.TotalVolume.Add(f.LockedAmount)
	a.TradeCount++
	return nil
}

// UpdatePosition applies a fill of sizeDelta (positive for buy-side
// exposure, negative for sell-side) at price to the account's position in
// symbol, tracking VWAP entry on same-direction adds and realizing PnL on
// opposite-direction reduces, flips, or full closes — grounded on the
// teacher's three-branch position-update logic: same-direction continues
// the VWAP, opposite-direction first reduces (realizing PnL on the reduced
// portion), and a reduce that overshoots the existing size flips the
// position to the other side at the fill price.
func (m *Manager) UpdatePosition(id uuid.UUID, symbol string, sizeDelta money.Quantity, price money.Price, marginDelta money.Value) *Position {
	a := m.GetOrCreate(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions[symbol]
	if !ok || !p.IsOpen() {
		side := Long
		qty := sizeDelta
		if sizeDelta < 0 {
			side = Short
			qty = -sizeDelta
		}
		p = &Position{Symbol: symbol, Side: side, Quantity: qty, EntryPrice: price, MarkPrice: price, Margin: marginDelta}
		a.positions[symbol] = p
		return p
	}

	signedExisting := int64(p.Quantity)
	if p.Side == Short {
		signedExisting = -signedExisting
	}
	signedNew := signedExisting + int64(sizeDelta)

	sameDirection := (signedExisting >= 0) == (int64(sizeDelta) >= 0) || signedExisting == 0

	// Mark at the fill price before computing any realized PnL below, so a
	// close or reduce realizes against the price of this fill rather than
	// a stale prior mark.
	p.MarkPrice = price

	switch {
	case signedNew == 0:
		// Full close: realize PnL on the entire remaining position.
		p.RealizedPnL = p.RealizedPnL.Add(p.UnrealizedPnL())
		p.Quantity = 0
		p.Margin = money.ZeroValue

	case sameDirection:
		// VWAP continuation: blend entry price by notional-weighted average.
		existingNotional := p.EntryPrice.MulQty(p.Quantity)
		addNotional := price.MulQty(absQty(sizeDelta))
		totalQty := p.Quantity.Add(absQty(sizeDelta))
		if !totalQty.IsZero() {
			blended := existingNotional.Add(addNotional)
			p.EntryPrice = money.PriceFromRaw(blended.Int64() * money.Scale / int64(totalQty))
		}
		p.Quantity = totalQty
		p.Margin = p.Margin.Add(marginDelta)

	case absInt64(signedNew) < absInt64(signedExisting):
		// Partial reduce in the opposite direction: realize PnL on the
		// reduced slice only, keep entry price, keep side.
		reduced := absQty(money.Quantity(signedExisting - signedNew))
		diff := price.Sub(p.EntryPrice)
		realized := diff.MulQty(reduced)
		if p.Side == Short {
			realized = realized.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.Quantity = absQty(money.Quantity(signedNew))

	default:
		// Overshoot: close the existing position (realizing its full PnL)
		// and flip to the opposite side for the remainder at the fill
		// price.
		p.RealizedPnL = p.RealizedPnL.Add(p.UnrealizedPnL())
		newSide := Long
		if signedNew < 0 {
			newSide = Short
		}
		p.Side = newSide
		p.Quantity = absQty(money.Quantity(signedNew))
		p.EntryPrice = price
		p.Margin = marginDelta
	}

	p.MarkPrice = price
	return p
}

func absQty(q money.Quantity) money.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// MarkToMarket updates every position's mark price for symbol across all
// accounts that hold one, without realizing PnL — used to feed a
// synthetic mark-price feed into liquidation checks between trades.
func (m *Manager) MarkToMarket(symbol string, mark money.Price) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		a.mu.Lock()
		if p, ok := a.positions[symbol]; ok {
			p.MarkPrice = mark
		}
		a.mu.Unlock()
	}
}

// CheckLiquidation reports whether the account's position in symbol has
// crossed its maintenance-margin threshold at the position's current mark
// price.
func (m *Manager) CheckLiquidation(id uuid.UUID, symbol string, maintenanceMarginBps int64) (bool, error) {
	a, err := m.Get(id)
	if err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[symbol]
	if !ok {
		return false, nil
	}
	return p.ShouldLiquidate(maintenanceMarginBps), nil
}

// Liquidate force-closes the account's position in symbol at closePrice,
// realizing whatever PnL remains and releasing the position's margin back
// to available balance. It returns the equity deficit (the amount by which
// margin plus PnL is negative; the account's other balances are not drawn
// on to cover it) so the caller can route it to an insurance fund.
func (m *Manager) Liquidate(id uuid.UUID, symbol, marginAsset string, closePrice money.Price) (deficit money.Value, err error) {
	a, err := m.Get(id)
	if err != nil {
		return money.ZeroValue, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions[symbol]
	if !ok || !p.IsOpen() {
		return money.ZeroValue, nil
	}

	p.MarkPrice = closePrice
	pnl := p.UnrealizedPnL()
	equity := p.Margin.Add(pnl)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Quantity = 0
	p.Margin = money.ZeroValue

	b := a.balance(marginAsset)
	if equity.Cmp(money.ZeroValue) >= 0 {
		b.Available = b.Available.Add(equity)
		return money.ZeroValue, nil
	}
	return equity.Neg(), nil
}
