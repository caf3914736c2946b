// Package marketdata defines the wire messages a market-data consumer
// exchanges with the exchange: snapshots, incremental depth deltas, trade
// updates, and the snapshot-request a consumer issues after it detects a
// sequence gap. Every price/quantity field travels as a raw fixed-point
// integer, never a float, so no precision is lost crossing the IPC
// boundary.
package marketdata

import (
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/orderbook"
)

// CompactLevel is a price/quantity pair at the wire's raw integer scale.
type CompactLevel struct {
	PriceRaw    int64
	QuantityRaw int64
}

// FromLevel converts an orderbook.Level to its wire form.
func FromLevel(l orderbook.Level) CompactLevel {
	return CompactLevel{PriceRaw: l.Price.Raw(), QuantityRaw: l.Quantity.Raw()}
}

// ToLevel converts a wire level back to an orderbook.Level.
func (c CompactLevel) ToLevel() orderbook.Level {
	return orderbook.Level{Price: money.PriceFromRaw(c.PriceRaw), Quantity: money.QuantityFromRaw(c.QuantityRaw)}
}

func levelsFrom(ls []orderbook.Level) []CompactLevel {
	out := make([]CompactLevel, len(ls))
	for i, l := range ls {
		out[i] = FromLevel(l)
	}
	return out
}

// OrderBookSnapshot is a full order-book state, so a late-joining
// consumer can resync without replaying every delta. The gateway's
// /strategy connection sends one in reply to a SnapshotRequest; nothing
// sends snapshots unprompted.
type OrderBookSnapshot struct {
	Exchange     string
	Symbol       string
	LastUpdateID uint64
	TimestampNs  int64
	Bids         []CompactLevel // descending
	Asks         []CompactLevel // ascending
}

// NewSnapshot builds a snapshot from a depth query result.
func NewSnapshot(exchange, symbol string, sequence uint64, nowNs int64, bids, asks []orderbook.Level) OrderBookSnapshot {
	return OrderBookSnapshot{
		Exchange:     exchange,
		Symbol:       symbol,
		LastUpdateID: sequence,
		TimestampNs:  nowNs,
		Bids:         levelsFrom(bids),
		Asks:         levelsFrom(asks),
	}
}

// DepthUpdate is an incremental delta. A consumer applies it only when
// FirstUpdateID <= its expected next id <= FinalUpdateID. An update with
// FinalUpdateID below the expected id is stale and dropped; one with
// FirstUpdateID above it signals a gap and must trigger a SnapshotRequest. A
// CompactLevel with QuantityRaw == 0 means "remove this price level".
type DepthUpdate struct {
	Exchange      string
	Symbol        string
	FirstUpdateID uint64
	FinalUpdateID uint64
	TimestampNs   int64
	Bids          []CompactLevel
	Asks          []CompactLevel
}

// TradeUpdate notifies a consumer of one executed trade.
type TradeUpdate struct {
	Exchange     string
	Symbol       string
	TradeID      uint64
	PriceRaw     int64
	QuantityRaw  int64
	BuyerIsMaker bool
	TimestampNs  int64
}

func (t TradeUpdate) Price() money.Price       { return money.PriceFromRaw(t.PriceRaw) }
func (t TradeUpdate) Quantity() money.Quantity { return money.QuantityFromRaw(t.QuantityRaw) }

// SnapshotRequest is sent by a consumer to request a full resync for
// symbol, typically right after it detects a sequence gap.
type SnapshotRequest struct {
	Exchange    string
	Symbol      string
	TimestampNs int64
}
