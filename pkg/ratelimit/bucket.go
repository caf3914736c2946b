// Package ratelimit implements per-client token-bucket admission control
// with four buckets: request weight/minute, orders/second, orders/day, and
// WS messages/second.
package ratelimit

import (
	"sync"
	"time"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
)

// Config holds the four bucket capacities. All are capacity-per-window;
// the refill rate is derived as capacity/window.
type Config struct {
	RequestWeightPerMinute uint32
	OrdersPerSecond        uint32
	OrdersPerDay           uint32
	WSMessagesPerSecond    uint32
}

// DefaultConfig mirrors conservative Binance-style defaults.
var DefaultConfig = Config{
	RequestWeightPerMinute: 1200,
	OrdersPerSecond:        10,
	OrdersPerDay:           200000,
	WSMessagesPerSecond:    5,
}

// Result is the outcome of a single admission check.
type Result struct {
	Allowed    bool
	Used       uint32
	Limit      uint32
	RetryAfter time.Duration // zero when Allowed
}

// Status is a snapshot of a client's bucket usage, for the admin surface.
type Status struct {
	RequestWeightUsed, RequestWeightLimit uint32
	OrdersUsedSecond, OrdersLimitSecond   uint32
	OrdersUsedDay, OrdersLimitDay         uint32
}

// bucket is a continuous-refill token bucket: tokens = min(capacity,
// tokens + elapsed*rate). last is tracked against the injected clock so a
// Simulated clock drives refill deterministically in replay.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
	clk        clock.Clock
}

func newBucket(clk clock.Clock, capacity uint32, window time.Duration) *bucket {
	rate := float64(capacity) / window.Seconds()
	return &bucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: rate,
		last:       clk.Now(),
		clk:        clk,
	}
}

func (b *bucket) refillLocked() {
	now := b.clk.Now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = minF(b.capacity, b.tokens+elapsed*b.refillRate)
		b.last = now
	}
}

// tryConsume attempts to take amount tokens, refilling first.
func (b *bucket) tryConsume(amount float64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= amount {
		b.tokens -= amount
		return true, 0
	}
	deficit := amount - b.tokens
	wait := time.Duration(deficit / b.refillRate * float64(time.Second))
	return false, wait
}

// refund gives back amount tokens without a refill pass, used only by
// check-order's refund-on-day-denial path.
func (b *bucket) refund(amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = minF(b.capacity, b.tokens+amount)
}

func (b *bucket) current() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return uint32(b.capacity - b.tokens)
}

func (b *bucket) limit() uint32 {
	return uint32(b.capacity)
}

func (b *bucket) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = b.capacity
	b.last = b.clk.Now()
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// clientState is the four buckets tracked per client id.
type clientState struct {
	requestWeight *bucket
	ordersSecond  *bucket
	ordersDay     *bucket
	wsMessages    *bucket
}

func newClientState(clk clock.Clock, cfg Config) *clientState {
	return &clientState{
		requestWeight: newBucket(clk, cfg.RequestWeightPerMinute, time.Minute),
		ordersSecond:  newBucket(clk, cfg.OrdersPerSecond, time.Second),
		ordersDay:     newBucket(clk, cfg.OrdersPerDay, 24*time.Hour),
		wsMessages:    newBucket(clk, cfg.WSMessagesPerSecond, time.Second),
	}
}

// Limiter is the per-client token-bucket admission controller. Per-client
// state lives in a concurrent map keyed by a caller-supplied client id
// (API key or IP); the hot path takes the map's shared read lock and then
// only per-bucket locks. The map's write lock is taken only when a client
// id is seen for the first time.
type Limiter struct {
	cfg    Config
	clk    clock.Clock
	mu     sync.RWMutex
	clients map[string]*clientState
}

// New creates a Limiter bound to clk (inject a clock.Simulated for
// deterministic replay) and cfg.
func New(clk clock.Clock, cfg Config) *Limiter {
	return &Limiter{cfg: cfg, clk: clk, clients: make(map[string]*clientState)}
}

func (l *Limiter) client(id string) *clientState {
	l.mu.RLock()
	c, ok := l.clients[id]
	l.mu.RUnlock()
	if ok {
		return c
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.clients[id]; ok {
		return c
	}
	c = newClientState(l.clk, l.cfg)
	l.clients[id] = c
	return c
}

// CheckRequest consumes weight tokens from the request-weight bucket.
func (l *Limiter) CheckRequest(clientID string, weight uint32) Result {
	b := l.client(clientID).requestWeight
	ok, wait := b.tryConsume(float64(weight))
	return Result{Allowed: ok, Used: b.current(), Limit: b.limit(), RetryAfter: wait}
}

// CheckOrder consumes from both the per-second and per-day order buckets.
// If the second bucket succeeds and the day bucket then fails, the second
// bucket is refunded before returning — the refund happens immediately
// after the day-bucket check fails. The two buckets are locked separately,
// so a concurrent caller for the same client can still see the per-second
// bucket decremented between the two checks.
func (l *Limiter) CheckOrder(clientID string) Result {
	c := l.client(clientID)

	secondOK, secondWait := c.ordersSecond.tryConsume(1)
	if !secondOK {
		return Result{Allowed: false, Used: c.ordersSecond.current(), Limit: c.ordersSecond.limit(), RetryAfter: secondWait}
	}

	dayOK, dayWait := c.ordersDay.tryConsume(1)
	if !dayOK {
		c.ordersSecond.refund(1)
		return Result{Allowed: false, Used: c.ordersDay.current(), Limit: c.ordersDay.limit(), RetryAfter: dayWait}
	}

	return Result{Allowed: true, Used: c.ordersSecond.current(), Limit: c.ordersSecond.limit()}
}

// CheckWSMessage consumes one token from the WS-messages/second bucket.
func (l *Limiter) CheckWSMessage(clientID string) Result {
	b := l.client(clientID).wsMessages
	ok, wait := b.tryConsume(1)
	return Result{Allowed: ok, Used: b.current(), Limit: b.limit(), RetryAfter: wait}
}

// Admin is the administrative surface: status/reset/config per client.
type Admin interface {
	Status(clientID string) Status
	Reset(clientID string)
	Config() Config
}

var _ Admin = (*Limiter)(nil)

func (l *Limiter) Status(clientID string) Status {
	c := l.client(clientID)
	return Status{
		RequestWeightUsed:  c.requestWeight.current(),
		RequestWeightLimit: c.requestWeight.limit(),
		OrdersUsedSecond:   c.ordersSecond.current(),
		OrdersLimitSecond:  c.ordersSecond.limit(),
		OrdersUsedDay:      c.ordersDay.current(),
		OrdersLimitDay:     c.ordersDay.limit(),
	}
}

func (l *Limiter) Reset(clientID string) {
	l.mu.RLock()
	c, ok := l.clients[clientID]
	l.mu.RUnlock()
	if !ok {
		return
	}
	c.requestWeight.reset()
	c.ordersSecond.reset()
	c.ordersDay.reset()
	c.wsMessages.reset()
}

func (l *Limiter) Config() Config { return l.cfg }
