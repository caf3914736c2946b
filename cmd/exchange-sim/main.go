package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/uhyunpark/hyperlicked/params"
	"github.com/uhyunpark/hyperlicked/pkg/clock"
	"github.com/uhyunpark/hyperlicked/pkg/events"
	"github.com/uhyunpark/hyperlicked/pkg/gateway"
	"github.com/uhyunpark/hyperlicked/pkg/ledger"
	"github.com/uhyunpark/hyperlicked/pkg/market"
	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/ratelimit"
	"github.com/uhyunpark/hyperlicked/pkg/shard"
	"github.com/uhyunpark/hyperlicked/pkg/usecase"
	"github.com/uhyunpark/hyperlicked/pkg/util"
)

// shutdownGrace bounds how long in-flight shard commands are given to
// drain before the process exits.
const shutdownGrace = 10 * time.Second

// algorithmFactory resolves the configured matching discipline to the
// per-shard Algorithm constructor consumed by shard.New.
func algorithmFactory(cfg params.Engine) shard.Algorithm {
	switch cfg.Algorithm {
	case "pro-rata", "proRata", "pro_rata":
		return func(string) matching.Algorithm {
			return matching.ProRata{MinAllocation: money.QuantityFromFloat64(0.0001)}
		}
	default:
		return func(string) matching.Algorithm { return matching.FIFO{} }
	}
}

// seedRegistry registers the simulator's starting trading pairs. A real
// deployment would load these from an admin API or a config file; for a
// research simulator a fixed seed set is enough to drive the exchange.
func seedRegistry() *market.Registry {
	reg := market.NewRegistry()
	pairs := []*market.TradingPairConfig{
		{
			Symbol:      "BTC-USDT",
			BaseAsset:   "BTC",
			QuoteAsset:  "USDT",
			Status:      market.Trading,
			TickSize:    money.PriceFromFloat64(0.01),
			LotSize:     money.QuantityFromFloat64(0.00001),
			MinQty:      money.QuantityFromFloat64(0.0001),
			MaxQty:      money.QuantityFromInt(1000),
			MinNotional: money.PriceFromInt(10).MulQty(money.QuantityFromInt(1)),
			MakerFeeBps: -2,
			TakerFeeBps: 10,
		},
		{
			Symbol:      "ETH-USDT",
			BaseAsset:   "ETH",
			QuoteAsset:  "USDT",
			Status:      market.Trading,
			TickSize:    money.PriceFromFloat64(0.01),
			LotSize:     money.QuantityFromFloat64(0.0001),
			MinQty:      money.QuantityFromFloat64(0.001),
			MaxQty:      money.QuantityFromInt(10000),
			MinNotional: money.PriceFromInt(10).MulQty(money.QuantityFromInt(1)),
			MakerFeeBps: -2,
			TakerFeeBps: 10,
		},
	}
	for _, p := range pairs {
		if err := reg.Register(p); err != nil {
			log.Fatalf("register %s: %v", p.Symbol, err)
		}
	}
	return reg
}

// seedLedger funds a handful of demo accounts so the REST and WebSocket
// surfaces have something to trade against immediately after startup.
func seedLedger() *ledger.Manager {
	lm := ledger.NewManager()
	for i := 0; i < 3; i++ {
		acct := lm.GetOrCreate(uuid.New())
		_ = lm.Deposit(acct.ID, "USDT", money.PriceFromInt(1_000_000).MulQty(money.QuantityFromInt(1)))
		_ = lm.Deposit(acct.ID, "BTC", money.PriceFromInt(10).MulQty(money.QuantityFromInt(1)))
		_ = lm.Deposit(acct.ID, "ETH", money.PriceFromInt(100).MulQty(money.QuantityFromInt(1)))
	}
	return lm
}

func main() {
	cfg := params.LoadFromEnv("")

	var logger, err = util.NewLogger(cfg.Logging)
	if cfg.Logging.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Logging)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("starting exchange-sim",
		"shard_count", cfg.Engine.ShardCount,
		"algorithm", cfg.Engine.Algorithm,
		"addr", cfg.Gateway.ListenAddr,
	)

	reg := seedRegistry()
	lm := seedLedger()
	limiter := ratelimit.New(clock.Wall{}, ratelimit.Config{
		RequestWeightPerMinute: cfg.RateLimit.RequestWeightPerMinute,
		OrdersPerSecond:        cfg.RateLimit.OrdersPerSecond,
		OrdersPerDay:           cfg.RateLimit.OrdersPerDay,
		WSMessagesPerSecond:    cfg.RateLimit.WSMessagesPerSecond,
	})
	hub := events.NewHub(clock.Wall{}, events.DefaultBufferSize)

	algo := algorithmFactory(cfg.Engine)

	// Trade-execution events are published by usecase.Exchange itself once
	// a submitting order's fills settle, so shards need no onTrades hook
	// here; wiring one too would double-publish every trade.
	shardCount := cfg.Engine.ShardCount
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*shard.Shard, shardCount)
	for i := range shards {
		shards[i] = shard.New(shard.Config{ShardID: i}, logger, algo, nil)
	}

	exchange := usecase.New(usecase.Config{
		Log:      logger,
		Clock:    clock.Wall{},
		Registry: reg,
		Ledger:   lm,
		Limiter:  limiter,
		Hub:      hub,
		Shards:   shards,
	})

	srv := gateway.NewServer(logger, clock.Wall{}, exchange, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Gateway.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		sugar.Infow("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			sugar.Fatalw("gateway server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, sh := range shards {
		if err := sh.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("shard shutdown error", "shard", sh.ShardID(), "err", err)
		}
	}
	sugar.Infow("exchange-sim stopped")
}
