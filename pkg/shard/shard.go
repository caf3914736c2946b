// Package shard implements the single-threaded order-book worker: each
// Shard owns a disjoint set of symbols and processes every command against
// them sequentially on one goroutine, so the books it owns never need
// internal locking.
package shard

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/order"
	"github.com/uhyunpark/hyperlicked/pkg/orderbook"
)

// state is the shard's atomic liveness tag.
type state uint32

const (
	stateAlive state = iota
	stateShuttingDown
	stateDead
)

var (
	ErrShardShutdown = errors.New("shard: shard has shut down")
	ErrShardFull     = errors.New("shard: command queue is full")
	ErrTimeout       = errors.New("shard: operation timed out")
)

// Config configures one shard's queue depth and identity.
type Config struct {
	ShardID           int
	CommandBufferSize int
	// PinToCore is advisory only — Go does not expose the affinity
	// syscall the Rust original pins with, so this field is retained for
	// operational parity only; the shard neither reads nor logs it.
	PinToCore *int
}

// DefaultConfig matches the original's conservative queue depth.
var DefaultConfig = Config{CommandBufferSize: 10_000}

// command is the closed set of operations a shard processes. Each carries
// a response channel the submitter blocks on (or selects against a
// context deadline).
type command struct {
	kind     commandKind
	symbol   string
	orderArg *order.Order
	orderID  uuid.UUID
	limit    int
	now      time.Time

	submitResp chan<- submitResult
	cancelResp chan<- cancelResult
	depthResp  chan<- depthResult
	getResp    chan<- getResult
	seqResp    chan<- uint64
	doneResp   chan<- struct{}
}

type commandKind int

const (
	cmdSubmitOrder commandKind = iota
	cmdCancelOrder
	cmdGetDepth
	cmdGetOrder
	cmdGetSequence
	cmdShutdown
)

type submitResult struct {
	trades []matching.Trade
	err    error
}

type cancelResult struct {
	order *order.Order
	err   error
}

type depthResult struct {
	bids, asks []orderbook.Level
	sequence   uint64
}

type getResult struct {
	order *order.Order
	err   error
}

// Algorithm selects the matching.Algorithm a newly created book should use.
type Algorithm func(symbol string) matching.Algorithm

// Shard owns a set of order books and processes commands against them
// one at a time on its own goroutine.
type Shard struct {
	cfg     Config
	log     *zap.Logger
	algo    Algorithm
	cmds    chan command
	books   map[string]*orderbook.Book
	orderIx map[uuid.UUID]string // order id -> symbol

	state           atomic.Uint32
	ordersProcessed atomic.Uint64
	tradesExecuted  atomic.Uint64

	onTrades func(symbol string, trades []matching.Trade)
}

// New creates a shard and starts its processing goroutine. onTrades, if
// non-nil, is invoked synchronously on the shard goroutine after each
// SubmitOrder that produced trades. cmd/exchange-sim passes nil, since
// usecase.Exchange publishes TradeExecuted events itself.
func New(cfg Config, log *zap.Logger, algo Algorithm, onTrades func(string, []matching.Trade)) *Shard {
	if cfg.CommandBufferSize <= 0 {
		cfg.CommandBufferSize = DefaultConfig.CommandBufferSize
	}
	s := &Shard{
		cfg:      cfg,
		log:      log,
		algo:     algo,
		cmds:     make(chan command, cfg.CommandBufferSize),
		books:    make(map[string]*orderbook.Book),
		orderIx:  make(map[uuid.UUID]string),
		onTrades: onTrades,
	}
	go s.run()
	return s
}

// IsAlive reports whether the shard is still accepting commands.
func (s *Shard) IsAlive() bool { return state(s.state.Load()) == stateAlive }

// ShardID returns this shard's configured identifier.
func (s *Shard) ShardID() int { return s.cfg.ShardID }

// Stats is a point-in-time snapshot of shard throughput counters.
type Stats struct {
	ShardID              int
	NumSymbols           int
	TotalOrdersProcessed uint64
	TotalTradesExecuted  uint64
	CommandsInQueue      int
}

// Stats returns current counters. NumSymbols is not filled in and is
// always zero. CommandsInQueue is read without synchronizing with the
// shard goroutine and is therefore approximate, matching the original's
// non-authoritative stats surface.
func (s *Shard) Stats() Stats {
	return Stats{
		ShardID:              s.cfg.ShardID,
		TotalOrdersProcessed: s.ordersProcessed.Load(),
		TotalTradesExecuted:  s.tradesExecuted.Load(),
		CommandsInQueue:      len(s.cmds),
	}
}

func (s *Shard) run() {
	if s.log != nil {
		s.log.Info("shard started", zap.Int("shard_id", s.cfg.ShardID))
	}
	for cmd := range s.cmds {
		if !s.process(cmd) {
			break
		}
	}
	s.state.Store(uint32(stateDead))
	if s.log != nil {
		s.log.Info("shard shutdown complete", zap.Int("shard_id", s.cfg.ShardID))
	}
}

func (s *Shard) process(cmd command) bool {
	switch cmd.kind {
	case cmdSubmitOrder:
		trades, err := s.handleSubmitOrder(cmd.orderArg, cmd.now)
		cmd.submitResp <- submitResult{trades: trades, err: err}
	case cmdCancelOrder:
		o, err := s.handleCancelOrder(cmd.symbol, cmd.orderID, cmd.now)
		cmd.cancelResp <- cancelResult{order: o, err: err}
	case cmdGetDepth:
		bids, asks, seq := s.handleGetDepth(cmd.symbol, cmd.limit)
		cmd.depthResp <- depthResult{bids: bids, asks: asks, sequence: seq}
	case cmdGetOrder:
		o, err := s.handleGetOrder(cmd.orderID)
		cmd.getResp <- getResult{order: o, err: err}
	case cmdGetSequence:
		cmd.seqResp <- s.handleGetSequence(cmd.symbol)
	case cmdShutdown:
		s.state.Store(uint32(stateShuttingDown))
		close(cmd.doneResp)
		return false
	}
	return true
}

func (s *Shard) bookFor(symbol string) *orderbook.Book {
	b, ok := s.books[symbol]
	if !ok {
		b = orderbook.New(symbol, s.algo(symbol))
		s.books[symbol] = b
	}
	return b
}

func (s *Shard) handleSubmitOrder(o *order.Order, now time.Time) ([]matching.Trade, error) {
	book := s.bookFor(o.Symbol)
	trades, err := book.Submit(o, now)
	s.ordersProcessed.Add(1)
	if err == nil {
		s.tradesExecuted.Add(uint64(len(trades)))
		if o.Status != order.Filled && o.Status != order.Canceled && o.Status != order.Rejected {
			s.orderIx[o.ID] = o.Symbol
		}
		if len(trades) > 0 && s.onTrades != nil {
			s.onTrades(o.Symbol, trades)
		}
	}
	return trades, err
}

func (s *Shard) handleCancelOrder(symbol string, id uuid.UUID, now time.Time) (*order.Order, error) {
	book, ok := s.books[symbol]
	if !ok {
		return nil, orderbook.ErrNotFound
	}
	o, err := book.Cancel(id, now)
	if err == nil {
		delete(s.orderIx, id)
	}
	return o, err
}

func (s *Shard) handleGetDepth(symbol string, limit int) ([]orderbook.Level, []orderbook.Level, uint64) {
	book, ok := s.books[symbol]
	if !ok {
		return nil, nil, 0
	}
	return book.Depth(limit)
}

func (s *Shard) handleGetOrder(id uuid.UUID) (*order.Order, error) {
	symbol, ok := s.orderIx[id]
	if !ok {
		return nil, orderbook.ErrNotFound
	}
	book, ok := s.books[symbol]
	if !ok {
		return nil, orderbook.ErrNotFound
	}
	return book.Get(id)
}

func (s *Shard) handleGetSequence(symbol string) uint64 {
	book, ok := s.books[symbol]
	if !ok {
		return 0
	}
	return book.Sequence()
}

// SubmitOrder enqueues o for matching and blocks until the shard has
// processed it or ctx is done.
func (s *Shard) SubmitOrder(ctx context.Context, o *order.Order, now time.Time) ([]matching.Trade, error) {
	resp := make(chan submitResult, 1)
	cmd := command{kind: cmdSubmitOrder, orderArg: o, now: now, submitResp: resp}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case r := <-resp:
		return r.trades, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// CancelOrder enqueues a cancel for id on symbol.
func (s *Shard) CancelOrder(ctx context.Context, symbol string, id uuid.UUID, now time.Time) (*order.Order, error) {
	resp := make(chan cancelResult, 1)
	cmd := command{kind: cmdCancelOrder, symbol: symbol, orderID: id, now: now, cancelResp: resp}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// GetDepth returns symbol's current depth snapshot.
func (s *Shard) GetDepth(ctx context.Context, symbol string, limit int) ([]orderbook.Level, []orderbook.Level, uint64, error) {
	resp := make(chan depthResult, 1)
	cmd := command{kind: cmdGetDepth, symbol: symbol, limit: limit, depthResp: resp}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, nil, 0, err
	}
	select {
	case r := <-resp:
		return r.bids, r.asks, r.sequence, nil
	case <-ctx.Done():
		return nil, nil, 0, ErrTimeout
	}
}

// GetOrder looks up a resting order by id.
func (s *Shard) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	resp := make(chan getResult, 1)
	cmd := command{kind: cmdGetOrder, orderID: id, getResp: resp}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// GetSequence returns symbol's book sequence, 0 if the book doesn't exist.
func (s *Shard) GetSequence(ctx context.Context, symbol string) (uint64, error) {
	resp := make(chan uint64, 1)
	cmd := command{kind: cmdGetSequence, symbol: symbol, seqResp: resp}
	if err := s.enqueue(ctx, cmd); err != nil {
		return 0, err
	}
	select {
	case seq := <-resp:
		return seq, nil
	case <-ctx.Done():
		return 0, ErrTimeout
	}
}

// Shutdown stops the shard's processing loop after any already-queued
// commands drain, and blocks until the goroutine has exited.
func (s *Shard) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	cmd := command{kind: cmdShutdown, doneResp: done}
	if err := s.enqueue(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (s *Shard) enqueue(ctx context.Context, cmd command) error {
	if !s.IsAlive() {
		return ErrShardShutdown
	}
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Route deterministically maps a symbol to one of n shards by FNV-1a hash,
// so every command for a given symbol always lands on the same shard.
func Route(symbol string, n int) int {
	if n <= 1 {
		return 0
	}
	var h uint32 = 2166136261
	for i := 0; i < len(symbol); i++ {
		h ^= uint32(symbol[i])
		h *= 16777619
	}
	return int(h % uint32(n))
}
