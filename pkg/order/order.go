// Package order defines the order entity and its lifecycle, independent of
// any particular book or matching algorithm.
package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/pkg/money"
)

// Side is the direction of an order.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Type is the order type.
type Type int8

const (
	Market Type = iota
	Limit
	LimitMaker // a.k.a. PostOnly: rejects instead of crossing
	StopLoss
	StopLossLimit
	TakeProfit
	TakeProfitLimit
)

func (t Type) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case LimitMaker:
		return "limit_maker"
	case StopLoss:
		return "stop_loss"
	case StopLossLimit:
		return "stop_loss_limit"
	case TakeProfit:
		return "take_profit"
	case TakeProfitLimit:
		return "take_profit_limit"
	default:
		return "unknown"
	}
}

// RequiresPrice reports whether a resting order of this type must carry a
// limit price.
func (t Type) RequiresPrice() bool {
	switch t {
	case Limit, LimitMaker, StopLossLimit, TakeProfitLimit:
		return true
	default:
		return false
	}
}

// RequiresStopPrice reports whether this type must carry a stop price.
func (t Type) RequiresStopPrice() bool {
	switch t {
	case StopLoss, StopLossLimit, TakeProfit, TakeProfitLimit:
		return true
	default:
		return false
	}
}

// NeverRests reports whether an order of this type can never leave a
// remainder resting on the book.
func (t Type) NeverRests() bool { return t == Market }

// TimeInForce governs how an order's unfilled remainder is treated.
type TimeInForce int8

const (
	GTC TimeInForce = iota // rest until canceled
	IOC                    // fill now, cancel remainder
	FOK                    // fill entirely now or reject
)

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "unknown"
	}
}

// Status is the one-way lifecycle state of an order.
type Status int8

const (
	New Status = iota
	PartiallyFilled
	Filled
	Canceled
	Rejected
	Expired
)

func (s Status) String() string {
	switch s {
	case New:
		return "NEW"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Canceled:
		return "CANCELED"
	case Rejected:
		return "REJECTED"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s is a one-way-final status; an order in a
// terminal status can never be mutated or canceled again.
func (s Status) IsTerminal() bool {
	switch s {
	case Filled, Canceled, Rejected, Expired:
		return true
	default:
		return false
	}
}

// Order is the engine's order entity. Every field that participates in an
// invariant (filled <= quantity, one-way status transitions, a resting
// order must have a price) is enforced by the owning shard and use-case,
// not by the struct itself — Order is a plain value.
type Order struct {
	ID              uuid.UUID
	ClientOrderID   string // caller-assigned, optional
	AccountID       uuid.UUID
	Symbol          string
	Side            Side
	Type            Type
	TimeInForce     TimeInForce
	Quantity        money.Quantity
	FilledQuantity  money.Quantity
	Price           money.Price // zero/unset for Market
	HasPrice        bool
	StopPrice       money.Price
	HasStopPrice    bool
	Status          Status
	Sequence        uint64 // book sequence stamped when the order comes to rest; FIFO priority follows level queue order
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() money.Quantity {
	return o.Quantity.SaturatingSub(o.FilledQuantity)
}

// IsFilled reports whether the order's filled quantity equals its
// quantity — the spec's Order-integrity invariant states this must hold
// exactly when Status == Filled.
func (o *Order) IsFilled() bool {
	return o.FilledQuantity == o.Quantity
}

// ApplyFill advances FilledQuantity by qty and recomputes Status. It never
// reduces FilledQuantity and never moves Status backward from a terminal
// state.
func (o *Order) ApplyFill(qty money.Quantity, at time.Time) {
	if o.Status.IsTerminal() {
		return
	}
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	if o.IsFilled() {
		o.Status = Filled
	} else if o.FilledQuantity > 0 {
		o.Status = PartiallyFilled
	}
	o.UpdatedAt = at
}

// Terminate moves the order to a terminal status, a one-way transition
// that is a no-op once already terminal.
func (o *Order) Terminate(status Status, at time.Time) {
	if o.Status.IsTerminal() {
		return
	}
	if !status.IsTerminal() {
		return
	}
	o.Status = status
	o.UpdatedAt = at
}
