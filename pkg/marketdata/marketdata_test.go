package marketdata

import "testing"

func snapshot(lastID uint64) OrderBookSnapshot {
	return OrderBookSnapshot{
		Symbol:       "BTCUSDT",
		LastUpdateID: lastID,
		Bids:         []CompactLevel{{PriceRaw: 5_000_000_000_000, QuantityRaw: 100_000_000}},
		Asks:         []CompactLevel{{PriceRaw: 5_001_000_000_000, QuantityRaw: 200_000_000}},
	}
}

func TestApplySnapshotSynchronizes(t *testing.T) {
	c := NewConsumer("BTCUSDT")
	if !c.NeedsResync() {
		t.Fatal("a fresh consumer should need a resync")
	}
	c.ApplySnapshot(snapshot(100))
	if !c.Synced() || c.NeedsResync() {
		t.Fatal("consumer should be synced after applying a snapshot")
	}
	if c.ExpectedNextID() != 101 {
		t.Fatalf("expected next id = %d, want 101", c.ExpectedNextID())
	}
	if c.BidCount() != 1 || c.AskCount() != 1 {
		t.Fatalf("unexpected level counts: bids=%d asks=%d", c.BidCount(), c.AskCount())
	}
}

func TestContiguousDepthUpdateApplies(t *testing.T) {
	c := NewConsumer("BTCUSDT")
	c.ApplySnapshot(snapshot(100))

	ok := c.ApplyDepthUpdate(DepthUpdate{
		FirstUpdateID: 101,
		FinalUpdateID: 101,
		Bids:          []CompactLevel{{PriceRaw: 5_000_000_000_000, QuantityRaw: 150_000_000}},
	})
	if !ok {
		t.Fatal("contiguous update should apply")
	}
	if c.ExpectedNextID() != 102 {
		t.Fatalf("expected next id = %d, want 102", c.ExpectedNextID())
	}
}

func TestGapDetectionRequiresResync(t *testing.T) {
	c := NewConsumer("BTCUSDT")
	c.ApplySnapshot(snapshot(100))

	ok := c.ApplyDepthUpdate(DepthUpdate{FirstUpdateID: 105, FinalUpdateID: 106})
	if ok {
		t.Fatal("a gapped update must be rejected")
	}
	if !c.NeedsResync() {
		t.Fatal("gap detection must flag NeedsResync")
	}
	if c.Synced() {
		t.Fatal("consumer must be marked unsynced after a detected gap")
	}
}

func TestStaleDepthUpdateIsIgnoredNotRejected(t *testing.T) {
	c := NewConsumer("BTCUSDT")
	c.ApplySnapshot(snapshot(100))

	ok := c.ApplyDepthUpdate(DepthUpdate{FirstUpdateID: 50, FinalUpdateID: 99})
	if !ok {
		t.Fatal("a stale update (already covered by the snapshot) should be a no-op success, not a gap")
	}
	if c.ExpectedNextID() != 101 {
		t.Fatalf("a stale update must not move expected next id, got %d", c.ExpectedNextID())
	}
}

func TestZeroQuantityRemovesLevel(t *testing.T) {
	c := NewConsumer("BTCUSDT")
	c.ApplySnapshot(snapshot(100))

	c.ApplyDepthUpdate(DepthUpdate{
		FirstUpdateID: 101,
		FinalUpdateID: 101,
		Bids:          []CompactLevel{{PriceRaw: 5_000_000_000_000, QuantityRaw: 0}},
	})
	if c.BidCount() != 0 {
		t.Fatalf("zero-quantity update should remove the level, bid count = %d", c.BidCount())
	}
}

func TestCompactLevelRoundTrip(t *testing.T) {
	orig := CompactLevel{PriceRaw: 123456789, QuantityRaw: 987654321}
	lvl := orig.ToLevel()
	back := FromLevel(lvl)
	if back != orig {
		t.Fatalf("round trip mismatch: %+v != %+v", back, orig)
	}
}
