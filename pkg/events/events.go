// Package events implements the simulator's broadcast bus: a fan-out hub
// that publishes exchange events to per-client subscribers, each filtered
// by symbol. A subscriber that cannot keep up is never silently starved of
// part of the feed — instead of dropping its connection (the original
// websocket hub's behavior), it receives an explicit Lagged event
// reporting how many messages it missed, mirroring a broadcast channel's
// lagged-receiver semantics.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
)

// Kind identifies the shape of an Event's Payload.
type Kind string

const (
	KindOrderAccepted  Kind = "order_accepted"
	KindOrderRejected  Kind = "order_rejected"
	KindOrderCanceled  Kind = "order_canceled"
	KindTradeExecuted  Kind = "trade_executed"
	KindWithdrawal     Kind = "withdrawal_status"
	KindMarketData     Kind = "market_data"
	KindLagged         Kind = "lagged"
)

// Event is one published notification.
type Event struct {
	Kind      Kind
	Symbol    string // empty for account-scoped events (withdrawal status)
	Sequence  uint64
	Timestamp time.Time
	Payload   any
}

// OrderAccepted is the Payload for KindOrderAccepted.
type OrderAccepted struct {
	OrderID string
}

// OrderRejected is the Payload for KindOrderRejected.
type OrderRejected struct {
	OrderID string
	Reason  string
}

// OrderCanceled is the Payload for KindOrderCanceled.
type OrderCanceled struct {
	OrderID string
}

// TradeExecuted is the Payload for KindTradeExecuted.
type TradeExecuted struct {
	BuyOrderID, SellOrderID string
	Price, Quantity         string
	BuyerIsMaker            bool
}

// WithdrawalStatus is the Payload for KindWithdrawal.
type WithdrawalStatus struct {
	WithdrawalID string
	Status       string
}

// Lagged is the Payload for KindLagged: the subscriber's buffer filled and
// Count events were dropped before this one.
type Lagged struct {
	Count uint64
}

// Subscriber receives events pushed to it by a Hub, filtered by the
// symbols it subscribed to (or every symbol, if Symbols is empty).
type Subscriber struct {
	ID      string
	ch      chan Event
	dropped atomic.Uint64

	mu      sync.RWMutex
	symbols map[string]bool // empty means "all symbols"
	account string          // recorded by SetAccount; not consulted by interestedIn
}

func newSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{ID: id, ch: make(chan Event, bufferSize), symbols: make(map[string]bool)}
}

// Events returns the channel to range over for delivery.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Subscribe adds symbol to this subscriber's interest set.
func (s *Subscriber) Subscribe(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[symbol] = true
}

// Unsubscribe removes symbol.
func (s *Subscriber) Unsubscribe(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.symbols, symbol)
}

// SetAccount records accountID on this subscriber. Delivery does not use
// it: an event with an empty Symbol (e.g. withdrawal status) reaches every
// subscriber, whatever account it concerns.
func (s *Subscriber) SetAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = accountID
}

func (s *Subscriber) interestedIn(e Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e.Symbol == "" {
		return true
	}
	if len(s.symbols) == 0 {
		return true
	}
	return s.symbols[e.Symbol]
}

// trySend delivers e without blocking. If the buffer is full, e is
// dropped and the subscriber's drop counter increments; the next
// successful delivery opportunity flushes a Lagged event ahead of the
// real one so the subscriber learns it missed messages instead of just
// silently falling behind.
func (s *Subscriber) trySend(e Event) {
	if d := s.dropped.Swap(0); d > 0 {
		lag := Event{Kind: KindLagged, Sequence: e.Sequence, Timestamp: e.Timestamp, Payload: Lagged{Count: d}}
		select {
		case s.ch <- lag:
		default:
			s.dropped.Add(d)
		}
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// Hub fans out published events to every interested subscriber.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	sequence    atomic.Uint64
	bufferSize  int
	clock       clock.Clock
}

// NewHub creates an empty hub bound to clk, the capability Publish uses to
// stamp events that arrive with a zero Timestamp. bufferSize <= 0 uses
// DefaultBufferSize.
func NewHub(clk clock.Clock, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{subscribers: make(map[string]*Subscriber), bufferSize: bufferSize, clock: clk}
}

// Register creates and registers a new subscriber under id, replacing any
// prior subscriber registered under the same id.
func (h *Hub) Register(id string) *Subscriber {
	s := newSubscriber(id, h.bufferSize)
	h.mu.Lock()
	h.subscribers[id] = s
	h.mu.Unlock()
	return s
}

// Unregister removes and closes the subscriber's channel.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		close(s.ch)
	}
}

// Publish assigns the next sequence number and fans e out to every
// interested subscriber without blocking the publisher.
func (h *Hub) Publish(e Event) Event {
	e.Sequence = h.sequence.Add(1)
	if e.Timestamp.IsZero() {
		e.Timestamp = h.clock.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subscribers {
		if s.interestedIn(e) {
			s.trySend(e)
		}
	}
	return e
}

// SubscriberCount returns the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
