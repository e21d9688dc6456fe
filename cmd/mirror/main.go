// Perp Mirror, a cross-venue copy-trading engine that follows one or more
// traders on a Hyperliquid-style perpetuals DEX and reproduces their
// positions, scaled by a configured ratio, on a Binance USD-M futures
// account.
//
// Architecture:
//
//	main.go                 entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go        orchestrator: wires feed → coin workers → executor, owns goroutine lifecycle
//	executor/executor.go    mirrors Master order events and fills onto the Follower venue
//	executor/reconciler.go  startup pass: re-adopts surviving orders, cancels zombies
//	executor/rebalancer.go  maintains a reduce-only take-profit anchor sized to excess exposure
//	executor/validator.go   periodic sweep reaping mappings whose Follower order is gone
//	sizing/calculator.go    Master size → Follower size translation (fixed or equity-proportional)
//	hyperliquid/            Master venue: info REST client + order/fill WebSocket feed
//	binance/                Follower venue: futures REST adapter + user-data stream
//	risk/gate.go            pre-trade checks: supported coins, position caps, emergency stop
//	store/                  Redis persistence: mappings, delta ledger, journal, orphans, locks
//	api/                    status HTTP API + dashboard WebSocket hub
//
// How it tracks:
//
//	Every Master order event is mirrored as a scaled GTC limit order on the
//	Follower account, bound by a durable oid ↔ orderId mapping. Sizes below
//	the Follower venue's minimum accumulate in a per-instrument delta ledger
//	and flush into the next mirrored order. Master taker fills become market
//	orders. A startup reconciliation re-adopts surviving orders after a
//	restart, so Follower exposure keeps tracking ratio × Master exposure
//	across crashes, disconnects and venue minimums.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"perp-mirror/internal/api"
	"perp-mirror/internal/config"
	"perp-mirror/internal/engine"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MIRROR_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Create and start engine
	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Start status API server if enabled
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, eng, eng.Gate(), eng.Events(), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("status api started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE: no real orders will be placed")
	}

	logger.Info("perp mirror started",
		"mode", cfg.Trading.Mode,
		"followed_users", len(cfg.Master.FollowedUsers),
		"instruments", len(cfg.Instruments),
		"dry_run", cfg.DryRun,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Stop the API first so no client observes a half-stopped engine
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
