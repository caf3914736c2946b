package marketdata

// Consumer tracks one symbol's expected next update id and applies
// incoming DepthUpdate messages to a local depth cache, requesting a
// fresh snapshot whenever it detects a gap it cannot bridge.
type Consumer struct {
	Symbol         string
	expectedNextID uint64
	synced         bool
	bids, asks     map[int64]int64 // price_raw -> quantity_raw
	needsResync    bool
}

// NewConsumer creates an unsynced consumer for symbol; it will request a
// snapshot before accepting its first delta.
func NewConsumer(symbol string) *Consumer {
	return &Consumer{Symbol: symbol, bids: make(map[int64]int64), asks: make(map[int64]int64), needsResync: true}
}

// ApplySnapshot resets the consumer's local book to s and marks it
// synchronized from s.LastUpdateID onward.
func (c *Consumer) ApplySnapshot(s OrderBookSnapshot) {
	c.bids = make(map[int64]int64, len(s.Bids))
	c.asks = make(map[int64]int64, len(s.Asks))
	for _, l := range s.Bids {
		c.bids[l.PriceRaw] = l.QuantityRaw
	}
	for _, l := range s.Asks {
		c.asks[l.PriceRaw] = l.QuantityRaw
	}
	c.expectedNextID = s.LastUpdateID + 1
	c.synced = true
	c.needsResync = false
}

// ApplyDepthUpdate validates d's sequence range against the consumer's
// expected next id. It returns true if d was applied, and also for a
// stale d (FinalUpdateID below the expected id), which is dropped without
// touching the book. It returns false when the consumer has no snapshot
// yet or a gap was detected; NeedsResync is then set, and the caller must
// issue a SnapshotRequest before further deltas can be trusted.
func (c *Consumer) ApplyDepthUpdate(d DepthUpdate) bool {
	if !c.synced {
		c.needsResync = true
		return false
	}
	if d.FinalUpdateID < c.expectedNextID {
		// Stale update, already covered by a prior snapshot or delta.
		return true
	}
	if d.FirstUpdateID > c.expectedNextID {
		c.needsResync = true
		c.synced = false
		return false
	}

	for _, l := range d.Bids {
		applyLevel(c.bids, l)
	}
	for _, l := range d.Asks {
		applyLevel(c.asks, l)
	}
	c.expectedNextID = d.FinalUpdateID + 1
	return true
}

func applyLevel(side map[int64]int64, l CompactLevel) {
	if l.QuantityRaw == 0 {
		delete(side, l.PriceRaw)
		return
	}
	side[l.PriceRaw] = l.QuantityRaw
}

// NeedsResync reports whether the consumer must issue a SnapshotRequest
// before it can trust further deltas.
func (c *Consumer) NeedsResync() bool { return c.needsResync }

// PendingSnapshotRequest builds the request to send when NeedsResync is
// true.
func (c *Consumer) PendingSnapshotRequest(exchange string, nowNs int64) SnapshotRequest {
	return SnapshotRequest{Exchange: exchange, Symbol: c.Symbol, TimestampNs: nowNs}
}

// ExpectedNextID returns the update id the consumer expects next.
func (c *Consumer) ExpectedNextID() uint64 { return c.expectedNextID }

// Synced reports whether the consumer currently has a valid snapshot base.
func (c *Consumer) Synced() bool { return c.synced }

// BidCount and AskCount expose the local book's level counts, mainly for
// tests.
func (c *Consumer) BidCount() int { return len(c.bids) }
func (c *Consumer) AskCount() int { return len(c.asks) }
