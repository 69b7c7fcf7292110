// Command agent runs the automated odds-maximizing market-making agent: it
// posts a single maker order per position on the side the operator chose,
// re-quoting it as the market moves and pausing it when risk thresholds are
// breached, until the position is fully filled or closed.
//
// Architecture:
//
//	main.go               — entry point: loads config, wires every component, waits for SIGINT/SIGTERM
//	internal/venue         — signing, REST client, retrying gateway, push/poll transport
//	internal/book          — local order book mirror, best-taker-odds/vig/liquidity metrics
//	internal/monitor       — per-market subscription fan-out, fill detection, event delivery
//	internal/position      — position store and per-position operation serializer
//	internal/controller    — the position state machine: reconciliation, risk gating, completion
//	internal/operator      — HTTP/WS facade: create/list/get/edit/close position, live event feed
//	internal/refdata       — sport/league/fixture/market discovery for the operator's create flow
package main

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/declansx/odds-maximizer-betting-bot/internal/book"
	"github.com/declansx/odds-maximizer-betting-bot/internal/config"
	"github.com/declansx/odds-maximizer-betting-bot/internal/controller"
	"github.com/declansx/odds-maximizer-betting-bot/internal/monitor"
	"github.com/declansx/odds-maximizer-betting-bot/internal/oddsmath"
	"github.com/declansx/odds-maximizer-betting-bot/internal/operator"
	"github.com/declansx/odds-maximizer-betting-bot/internal/position"
	"github.com/declansx/odds-maximizer-betting-bot/internal/refdata"
	"github.com/declansx/odds-maximizer-betting-bot/internal/stakemath"
	"github.com/declansx/odds-maximizer-betting-bot/internal/venue"
	"github.com/declansx/odds-maximizer-betting-bot/internal/venue/testsigner"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("AGENT_CONFIG"); p != "" {
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

	logger := newLogger(cfg.Logging)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	signer, err := newSigner(*cfg)
	if err != nil {
		logger.Error("failed to build signer", "error", err)
		os.Exit(1)
	}

	rl := venue.NewRateLimiter(venue.RateLimits{
		PostCapacity: float64(cfg.RateLimit.PostBurst), PostRate: cfg.RateLimit.PostPerSecond,
		CancelCapacity: float64(cfg.RateLimit.CancelBurst), CancelRate: cfg.RateLimit.CancelPerSecond,
		SnapshotCapacity: float64(cfg.RateLimit.SnapshotBurst), SnapshotRate: cfg.RateLimit.SnapshotPerSecond,
	})

	client := venue.NewClient(cfg.Venue.BaseURL, rl, signer, cfg.Wallet.MakerID, cfg.DryRun, logger)

	gateway := venue.NewGateway(client, venue.GatewayConfig{
		MaxRetries:      cfg.RateLimit.MaxRetries,
		RetryBaseDelay:  cfg.RateLimit.RetryBaseDelay,
		RetryMultiplier: cfg.RateLimit.RetryBackoff,
	}, logger)

	transport := venue.NewTransport(cfg.Venue.WSURL, client, venue.TransportConfig{
		PushConnectTimeout:   cfg.Timing.PushConnectTimeout,
		PollFallbackInterval: cfg.Timing.PollFallbackInterval,
		MaxReconnectWait:     cfg.Timing.MaxReconnectWait,
	}, logger)

	oddsUnit := big.NewInt(cfg.Wire.OddsUnit)
	mirror := book.NewMirror(cfg.Wallet.MakerID, oddsUnit, logger)

	store := position.NewStore()
	serializer := position.NewSerializer(logger)

	oddsParams := oddsmath.Params{OddsUnit: oddsUnit, LadderStep: big.NewInt(cfg.Wire.LadderStep)}
	stakeParams := stakemath.Params{StakeUnit: big.NewInt(cfg.Wire.StakeUnit)}

	var hub *operator.Hub
	var sink controller.OperatorSink
	if cfg.Operator.Enabled {
		hub = operator.NewHub(logger)
		sink = hub
	}

	// refdata backs only the operator surface's market-search helper; the
	// core never touches it. Left nil if no discovery endpoint is configured.
	// Assigned through the interface only when non-nil, so a nil *refdata.Client
	// never hides behind a non-nil operator.RefdataClient.
	var refdataClient operator.RefdataClient
	if cfg.Venue.RefdataURL != "" {
		refdataClient = refdata.NewClient(cfg.Venue.RefdataURL, logger)
	}

	ctrlCfg := controller.Config{
		CompleteFraction:       cfg.Timing.CompleteFraction,
		MinOrderUpdateInterval: cfg.Timing.MinOrderUpdateInterval,
	}

	// The Monitor needs an EventHandler before the Controller exists (the
	// Controller needs the Monitor). handlerRef breaks the cycle: it's
	// handed to monitor.New now and pointed at ctrl once ctrl is built.
	ref := &handlerRef{}
	mon := monitor.New(mirror, transport, serializer, ref, cfg.Timing.RecentCancelTTL, logger)
	ctrl := controller.New(store, mon, serializer, gateway, oddsParams, stakeParams, ctrlCfg, sink, logger)
	ref.h = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go transport.Run(ctx)

	var opServer *operator.Server
	if cfg.Operator.Enabled {
		opServer = operator.NewServer(operator.Config{
			Port:           cfg.Operator.Port,
			AllowedOrigins: cfg.Operator.AllowedOrigins,
		}, hub, ctrl, shutdownFunc(cancel), refdataClient, logger)
		go func() {
			if err := opServer.Start(); err != nil {
				logger.Error("operator server failed", "error", err)
			}
		}()
		logger.Info("operator surface started", "port", cfg.Operator.Port)
	}

	logger.Info("agent started",
		"venue", cfg.Venue.BaseURL,
		"dry_run", cfg.DryRun,
		"operator_enabled", cfg.Operator.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutdown requested via operator surface")
	}

	shutdown(ctrl, opServer, cancel, logger)
}

// handlerRef defers dispatch to h, which is nil only for the brief window
// between monitor.New and the assignment right after controller.New.
// Nothing reaches the monitor before transport.Run starts, after h is set.
type handlerRef struct {
	h monitor.EventHandler
}

func (r *handlerRef) HandleMarketData(ctx context.Context, positionID uuid.UUID, metrics types.Metrics) {
	if r.h != nil {
		r.h.HandleMarketData(ctx, positionID, metrics)
	}
}

func (r *handlerRef) HandleFill(ctx context.Context, positionID uuid.UUID, orderID string, newFilledStake *big.Int) {
	if r.h != nil {
		r.h.HandleFill(ctx, positionID, orderID, newFilledStake)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
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

func newSigner(cfg config.Config) (venue.Signer, error) {
	if cfg.DryRun {
		return testsigner.New(cfg.Wallet.MakerID), nil
	}
	return venue.NewEIP712Signer(cfg.Wallet.PrivateKey, cfg.Wallet.ChainID)
}

// shutdownFunc is wired to POST /api/shutdown: the response is allowed to
// flush before the process-wide context is cancelled, which triggers the
// same signal-driven shutdown path as SIGINT/SIGTERM.
func shutdownFunc(cancel context.CancelFunc) operator.ShutdownFunc {
	return func(ctx context.Context) error {
		go func() {
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()
		return nil
	}
}

func shutdown(ctrl *controller.Controller, opServer *operator.Server, cancel context.CancelFunc, logger *slog.Logger) {
	ctx, timeout := context.WithTimeout(context.Background(), 15*time.Second)
	defer timeout()

	for _, p := range ctrl.ListPositions() {
		if err := ctrl.ClosePosition(ctx, p.ID); err != nil {
			logger.Warn("failed to close position during shutdown", "position_id", p.ID, "error", err)
		}
	}

	if opServer != nil {
		if err := opServer.Stop(ctx); err != nil {
			logger.Error("failed to stop operator server", "error", err)
		}
	}

	cancel()
	logger.Info("agent stopped")
}
