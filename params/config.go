package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Gateway holds the REST/WebSocket listen configuration.
type Gateway struct {
	ListenAddr string
}

// Engine holds the matching-engine topology.
type Engine struct {
	ShardCount int
	// Algorithm selects the matching discipline applied at every price
	// level across every shard: "fifo" (price-time) or "pro-rata".
	Algorithm string
}

// RateLimit mirrors ratelimit.Config's four bucket capacities, kept here
// as plain integers so it can be populated from the environment without
// this package importing pkg/ratelimit.
type RateLimit struct {
	RequestWeightPerMinute uint32
	OrdersPerSecond        uint32
	OrdersPerDay           uint32
	WSMessagesPerSecond    uint32
}

// Logging controls the structured logger's verbosity and optional file
// sink.
type Logging struct {
	Level   string // "debug" | "info" | "warn" | "error"
	LogFile string // empty disables the file sink
}

type Config struct {
	Gateway   Gateway
	Engine    Engine
	RateLimit RateLimit
	Logging   Logging
}

// Default mirrors the reference module's conservative devnet defaults,
// sized for this simulator's domain instead of a consensus network.
func Default() Config {
	return Config{
		Gateway: Gateway{ListenAddr: ":8080"},
		Engine: Engine{
			ShardCount: 4,
			Algorithm:  "fifo",
		},
		RateLimit: RateLimit{
			RequestWeightPerMinute: 1200,
			OrdersPerSecond:        10,
			OrdersPerDay:           200_000,
			WSMessagesPerSecond:    5,
		},
		Logging: Logging{Level: "info"},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("GATEWAY_ADDR"); addr != "" {
		cfg.Gateway.ListenAddr = addr
	}
	if n := os.Getenv("SHARD_COUNT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			cfg.Engine.ShardCount = v
		}
	}
	if algo := os.Getenv("MATCHING_ALGORITHM"); algo != "" {
		cfg.Engine.Algorithm = strings.ToLower(algo)
	}
	if v := os.Getenv("RATE_LIMIT_REQUEST_WEIGHT_PER_MINUTE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.RateLimit.RequestWeightPerMinute = uint32(n)
		}
	}
	if v := os.Getenv("RATE_LIMIT_ORDERS_PER_SECOND"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.RateLimit.OrdersPerSecond = uint32(n)
		}
	}
	if v := os.Getenv("RATE_LIMIT_ORDERS_PER_DAY"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.RateLimit.OrdersPerDay = uint32(n)
		}
	}
	if v := os.Getenv("RATE_LIMIT_WS_MESSAGES_PER_SECOND"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.RateLimit.WSMessagesPerSecond = uint32(n)
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if f := os.Getenv("LOG_FILE"); f != "" {
		cfg.Logging.LogFile = f
	}

	return cfg
}

// Zap is a small helper kept here (rather than in pkg/util) so params
// stays the single place env-driven defaults are decoded. It returns the
// level name, falling back to "info"; pkg/util parses that name into a
// zapcore.Level before passing it to zap.NewAtomicLevelAt.
func (l Logging) Zap() string {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return l.Level
	default:
		return "info"
	}
}
