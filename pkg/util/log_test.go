package util

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/uhyunpark/hyperlicked/params"
)

func TestLevelHonorsConfiguredLevel(t *testing.T) {
	if got := level(params.Logging{Level: "debug"}); got != zapcore.DebugLevel {
		t.Fatalf("level(debug) = %v, want DebugLevel", got)
	}
	if got := level(params.Logging{Level: "bogus"}); got != zapcore.InfoLevel {
		t.Fatalf("level(bogus) = %v, want InfoLevel fallback", got)
	}
}

func TestNewLoggerBuildsAtConfiguredLevel(t *testing.T) {
	logger, err := NewLogger(params.Logging{Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info-level logs to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("expected warn-level logs to be enabled")
	}
}
