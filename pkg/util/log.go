package util

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/uhyunpark/hyperlicked/params"
)

// level resolves cfg's configured level string (via params.Logging.Zap,
// which falls back to "info" on anything unrecognized) to a zapcore.Level.
func level(cfg params.Logging) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(cfg.Zap())); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// NewLogger builds a console-only logger at cfg's configured level.
func NewLogger(cfg params.Logging) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level(cfg))
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// NewLoggerWithFile builds a logger that writes to both console and
// cfg.LogFile, each sink gated at cfg's configured level.
func NewLoggerWithFile(cfg params.Logging) (*zap.Logger, error) {
	dir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleEncoder := zapcore.NewJSONEncoder(encoderCfg)
	fileEncoder := zapcore.NewJSONEncoder(encoderCfg)

	lvl := level(cfg)
	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), lvl),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(file), lvl),
	)

	return zap.New(core), nil
}
