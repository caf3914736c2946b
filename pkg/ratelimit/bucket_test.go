package ratelimit

import (
	"testing"
	"time"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
)

func TestRequestLimit(t *testing.T) {
	clk := clock.NewSimulated(time.Unix(0, 0))
	limiter := New(clk, Config{RequestWeightPerMinute: 10, OrdersPerSecond: 10, OrdersPerDay: 10, WSMessagesPerSecond: 10})

	for i := 0; i < 10; i++ {
		if !limiter.CheckRequest("test", 1).Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	result := limiter.CheckRequest("test", 1)
	if result.Allowed {
		t.Fatal("11th request should be denied")
	}
	if result.RetryAfter <= 0 {
		t.Fatal("denied result must report a positive retry_after")
	}
}

func TestOrderLimitPerSecond(t *testing.T) {
	clk := clock.NewSimulated(time.Unix(0, 0))
	limiter := New(clk, Config{RequestWeightPerMinute: 1000, OrdersPerSecond: 2, OrdersPerDay: 100, WSMessagesPerSecond: 10})

	if !limiter.CheckOrder("test").Allowed {
		t.Fatal("order 1 should be allowed")
	}
	if !limiter.CheckOrder("test").Allowed {
		t.Fatal("order 2 should be allowed")
	}
	if limiter.CheckOrder("test").Allowed {
		t.Fatal("order 3 should be denied (per-second limit)")
	}
}

func TestOrderDayLimitRefundsSecondBucket(t *testing.T) {
	clk := clock.NewSimulated(time.Unix(0, 0))
	limiter := New(clk, Config{RequestWeightPerMinute: 1000, OrdersPerSecond: 5, OrdersPerDay: 1, WSMessagesPerSecond: 10})

	// First order consumes the only day-bucket token.
	if !limiter.CheckOrder("test").Allowed {
		t.Fatal("first order should be allowed")
	}
	before := limiter.Status("test").OrdersUsedSecond

	// Second order: the second-bucket succeeds, but the day bucket is
	// exhausted, so the second bucket must be refunded.
	result := limiter.CheckOrder("test")
	if result.Allowed {
		t.Fatal("second order should be denied by the day bucket")
	}
	after := limiter.Status("test").OrdersUsedSecond
	if after != before {
		t.Fatalf("denied-by-day order must refund the second bucket: used before=%d after=%d", before, after)
	}
}

func TestPerClientIsolation(t *testing.T) {
	clk := clock.NewSimulated(time.Unix(0, 0))
	limiter := New(clk, Config{RequestWeightPerMinute: 5, OrdersPerSecond: 10, OrdersPerDay: 10, WSMessagesPerSecond: 10})

	for i := 0; i < 5; i++ {
		limiter.CheckRequest("client1", 1)
	}
	if limiter.CheckRequest("client1", 1).Allowed {
		t.Fatal("client1 should be exhausted")
	}
	if !limiter.CheckRequest("client2", 1).Allowed {
		t.Fatal("client2 should still have quota")
	}
}

func TestContinuousRefill(t *testing.T) {
	clk := clock.NewSimulated(time.Unix(0, 0))
	limiter := New(clk, Config{RequestWeightPerMinute: 60, OrdersPerSecond: 10, OrdersPerDay: 10, WSMessagesPerSecond: 10})

	for i := 0; i < 60; i++ {
		limiter.CheckRequest("test", 1)
	}
	if limiter.CheckRequest("test", 1).Allowed {
		t.Fatal("bucket should be empty")
	}

	clk.Advance(time.Second) // 60 tokens/min == 1 token/sec
	if !limiter.CheckRequest("test", 1).Allowed {
		t.Fatal("one second of refill should grant exactly one more token")
	}
}

func TestReset(t *testing.T) {
	clk := clock.NewSimulated(time.Unix(0, 0))
	limiter := New(clk, Config{RequestWeightPerMinute: 1, OrdersPerSecond: 10, OrdersPerDay: 10, WSMessagesPerSecond: 10})

	limiter.CheckRequest("test", 1)
	if limiter.CheckRequest("test", 1).Allowed {
		t.Fatal("should be exhausted")
	}
	limiter.Reset("test")
	if !limiter.CheckRequest("test", 1).Allowed {
		t.Fatal("reset should restore full capacity")
	}
}
