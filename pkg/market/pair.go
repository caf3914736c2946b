// Package market holds the trading-pair registry: per-symbol configuration
// that governs order validation. A TradingPairConfig is immutable for the
// duration of a session; only its Status is ever mutated in place.
package market

import (
	"fmt"

	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
)

// Status is the trading status of a pair.
type Status int8

const (
	Trading Status = iota
	Halted
	BreakPreOpen
	Delisted
)

func (s Status) String() string {
	switch s {
	case Trading:
		return "TRADING"
	case Halted:
		return "HALT"
	case BreakPreOpen:
		return "PRE_OPEN"
	case Delisted:
		return "DELISTED"
	default:
		return "UNKNOWN"
	}
}

// TradingPairConfig is the per-symbol configuration governing validation.
type TradingPairConfig struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	Status      Status
	TickSize    money.Price
	LotSize     money.Quantity
	MinQty      money.Quantity
	MaxQty      money.Quantity
	MinNotional money.Value
	MakerFeeBps int64 // basis points; can be negative (rebate)
	TakerFeeBps int64

	// AllowedOrderTypes restricts which order.Type values may be submitted
	// for this symbol.
	AllowedOrderTypes map[order.Type]bool
}

// AllowsType reports whether t is permitted for this pair.
func (c *TradingPairConfig) AllowsType(t order.Type) bool {
	if len(c.AllowedOrderTypes) == 0 {
		return true // unset means unrestricted
	}
	return c.AllowedOrderTypes[t]
}

// Validate checks the static configuration for internal consistency (not
// an order against it — see ValidateOrder).
func (c *TradingPairConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("market: symbol cannot be empty")
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("market: tick size must be positive")
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("market: lot size must be positive")
	}
	if c.MinQty < 0 || c.MaxQty < 0 {
		return fmt.Errorf("market: min/max qty cannot be negative")
	}
	if c.MaxQty > 0 && c.MinQty > c.MaxQty {
		return fmt.Errorf("market: min qty exceeds max qty")
	}
	return nil
}

// ValidateOrder enforces tick/lot/notional/status against a proposed
// price+quantity, per §4.7 step (3) of the submit-order use-case.
func (c *TradingPairConfig) ValidateOrder(price money.Price, qty money.Quantity) error {
	if c.Status != Trading {
		return fmt.Errorf("market: %s is not trading (status %s)", c.Symbol, c.Status)
	}
	if qty <= 0 {
		return fmt.Errorf("market: quantity must be positive")
	}
	if rounded := qty.RoundToLot(c.LotSize); rounded != qty {
		return fmt.Errorf("market: quantity %s not aligned to lot size %s", qty, c.LotSize)
	}
	if c.MinQty > 0 && qty < c.MinQty {
		return fmt.Errorf("market: quantity %s below minimum %s", qty, c.MinQty)
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		return fmt.Errorf("market: quantity %s exceeds maximum %s", qty, c.MaxQty)
	}
	if price > 0 {
		if rounded := price.RoundToTick(c.TickSize); rounded != price {
			return fmt.Errorf("market: price %s not aligned to tick size %s", price, c.TickSize)
		}
		notional := price.MulQty(qty)
		if notional.Cmp(c.MinNotional) < 0 {
			return fmt.Errorf("market: notional %s below minimum %s", notional, c.MinNotional)
		}
	}
	return nil
}
