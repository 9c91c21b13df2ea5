// Command gateway runs the pre-trade risk gateway server: a single-threaded,
// epoll-driven TCP listener that accepts the binary NewOrder/DeleteOrder/
// ModifyOrderQuantity/Trade protocol and answers with OrderResponse frames.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rishav/risk-gateway/internal/config"
	"github.com/rishav/risk-gateway/internal/metrics"
	"github.com/rishav/risk-gateway/internal/reactor"
	"github.com/rishav/risk-gateway/internal/risk"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting risk gateway",
		zap.Uint64("buy_limit", cfg.BuyLimit),
		zap.Uint64("sell_limit", cfg.SellLimit),
		zap.String("host", cfg.Host),
		zap.Uint16("port", cfg.Port))

	engine := risk.New(risk.Limits{BuyLimit: cfg.BuyLimit, SellLimit: cfg.SellLimit})

	srv, err := reactor.New(cfg.Host, cfg.Port, engine, logger)
	if err != nil {
		logger.Fatal("failed to construct server", zap.Error(err))
	}

	reg, promReg := metrics.NewRegistry()
	srv.AttachMetrics(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("signal received, shutting down")
		cancel()
	}()

	go func() {
		if err := metrics.Serve(ctx, "127.0.0.1:9090", promReg, logger); err != nil {
			logger.Warn("metrics server exited with error", zap.Error(err))
		}
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	os.Exit(0)
}

// newLogger mirrors hyperlicked's pkg/util/log.go: a production zap config
// with ISO8601 timestamps, level set from the CLI/env-resolved string.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
