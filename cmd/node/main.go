package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peermesh/internal/config"
	"peermesh/internal/node"
	"peermesh/internal/observability/logging"
	"peermesh/internal/resilience/backoff"
	"peermesh/internal/resilience/executor"
	"peermesh/internal/resilience/idempotency"
	"peermesh/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger = logging.WithNode(logger, cfg.Node.ID)
	logger.Info("configuration loaded",
		slog.String("listen_addr", cfg.Node.ListenAddr),
		slog.Int("peers", len(cfg.Node.Peers)),
		slog.Int("default_ttl", cfg.Gossip.DefaultTTL))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := node.New(nodeConfig(cfg), transport.NewTCP(), deliverMessage(logger), logger)

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, logger, cfg.Metrics.Addr, n)
	}

	if err := n.Start(ctx); err != nil {
		logger.Error("failed to start node", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("node started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutdown signal received", slog.String("signal", received.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := n.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", slog.Any("error", err))
		os.Exit(1)
	}
}

// nodeConfig maps the loaded configuration onto the node settings.
func nodeConfig(cfg *config.Config) node.Config {
	return node.Config{
		ID:                  cfg.Node.ID,
		ListenAddr:          cfg.Node.ListenAddr,
		Peers:               cfg.Node.Peers,
		DefaultTTL:          cfg.Gossip.DefaultTTL,
		ReconnectInterval:   cfg.Node.ReconnectInterval,
		SeenCapacity:        cfg.Gossip.SeenCapacity,
		ForwardRate:         cfg.Gossip.ForwardRate,
		ForwardBurst:        cfg.Gossip.ForwardBurst,
		BreakerThreshold:    cfg.Resilience.BreakerFailureThreshold,
		BreakerResetTimeout: cfg.Resilience.BreakerResetTimeout,
		Send: executor.Config{
			AttemptTimeout: cfg.Resilience.AttemptTimeout,
			MaxRetries:     cfg.Resilience.MaxRetries,
			Backoff: backoff.Config{
				Base:           cfg.Resilience.BackoffBase,
				Max:            cfg.Resilience.BackoffMax,
				JitterFraction: cfg.Resilience.BackoffJitter,
			},
		},
		Dial: executor.Config{
			AttemptTimeout: cfg.Resilience.DialTimeout,
			Backoff: backoff.Config{
				Base:           cfg.Resilience.BackoffBase,
				Max:            cfg.Resilience.BackoffMax,
				JitterFraction: cfg.Resilience.BackoffJitter,
			},
		},
		Idempotency: idempotency.Config{
			Retention:     cfg.Resilience.IdempotencyRetention,
			PurgeInterval: time.Minute,
		},
	}
}

// deliverMessage is the local delivery sink. Downstream consumers would hang
// off this; the standalone binary just logs each unique message.
func deliverMessage(logger *slog.Logger) func(origin string, payload []byte) {
	return func(origin string, payload []byte) {
		logger.Info("message delivered",
			slog.String("origin", origin),
			slog.Int("payload_bytes", len(payload)))
	}
}
