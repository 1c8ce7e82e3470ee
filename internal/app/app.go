// Package app wires configuration into concrete backends and runs one
// hedge session end to end: lock the instrument, start the book
// aggregator and metrics endpoint, drive the session, tear down.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okay456okay/crypto-earn-sub001/internal/config"
	"github.com/okay456okay/crypto-earn-sub001/internal/domain"
	"github.com/okay456okay/crypto-earn-sub001/internal/engine"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run executes one hedge session and blocks until it completes or ctx is
// cancelled. The final summary is flushed by the session itself.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	if deps.Lock != nil {
		if err := deps.Lock.Acquire(ctx); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: instrument %s is locked by another session: %w",
					a.cfg.Hedge.Instrument, err)
			}
			return fmt.Errorf("app: acquire session lock: %w", err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deps.Lock.Release(releaseCtx); err != nil {
				a.logger.Warn("lock release failed", slog.String("error", err.Error()))
			}
		}()
	}

	if a.cfg.Metrics.Enabled {
		stopMetrics := a.serveMetrics(deps)
		defer stopMetrics()
	}

	h := a.cfg.Hedge
	aggregator := engine.NewAggregator(deps.Spot, deps.Contract, h.Instrument, h.MaxQuoteAge.Duration, a.logger)
	session := buildSession(a.cfg, deps, aggregator, a.logger)

	// The aggregator outlives individual trades but not the session; its
	// context is cancelled as soon as the session returns.
	aggCtx, cancelAgg := context.WithCancel(ctx)
	defer cancelAgg()

	aggDone := make(chan error, 1)
	go func() {
		aggDone <- aggregator.Run(aggCtx)
	}()

	sum, runErr := session.Run(ctx)

	cancelAgg()
	if aggErr := <-aggDone; aggErr != nil && !errors.Is(aggErr, context.Canceled) {
		a.logger.Error("aggregator stopped with error", slog.String("error", aggErr.Error()))
		if runErr == nil {
			runErr = aggErr
		}
	}

	a.logger.Info("run complete",
		slog.String("session_id", sum.SessionID),
		slog.String("stop_reason", sum.StopReason),
		slog.Int("trades", sum.TradesCompleted),
	)
	return runErr
}

// serveMetrics exposes the Prometheus registry and returns a stopper.
func (a *App) serveMetrics(deps *Dependencies) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}

	go func() {
		a.logger.Info("metrics endpoint listening", slog.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// buildSession assembles the engine components around the wired backends.
func buildSession(cfg *config.Config, deps *Dependencies, aggregator *engine.Aggregator, logger *slog.Logger) *engine.Session {
	h := cfg.Hedge
	direction := domain.HedgeDirection(h.Direction)

	gate := engine.NewGate(engine.GateParams{
		Direction:       direction,
		TradeSize:       h.TradeSize,
		MinSpread:       h.MinSpread,
		MaxSpread:       h.MaxSpread,
		DepthMultiplier: h.DepthMultiplier,
		MaxQuoteAge:     h.MaxQuoteAge.Duration,
	})
	executor := engine.NewExecutor(deps.Spot, deps.Contract, engine.ExecutorParams{
		BaseAsset:        h.BaseAsset,
		PollInterval:     h.PollInterval.Duration,
		MaxFillWait:      h.MaxFillWait.Duration,
		FillGapTolerance: h.FillGapTolerance,
		FeeCompensation:  h.FeeCompensation,
	}, logger)
	ledger := engine.NewLedger()
	rebalancer := engine.NewRebalancer(deps.Spot, deps.Contract, ledger, executor, h.RebalanceThreshold, logger)

	return engine.NewSession(engine.SessionParams{
		Instrument:             h.Instrument,
		BaseAsset:              h.BaseAsset,
		QuoteAsset:             h.QuoteAsset,
		Direction:              direction,
		TradeSize:              h.TradeSize,
		TradeCount:             h.TradeCount,
		Leverage:               h.Leverage,
		RebalanceThreshold:     h.RebalanceThreshold,
		TradePause:             h.TradePause.Duration,
		MaxConsecutiveFailures: h.MaxConsecutiveFailures,
		UseReservoir:           h.UseEarnReservoir,
	}, engine.SessionDeps{
		Aggregator: aggregator,
		Gate:       gate,
		Executor:   executor,
		Ledger:     ledger,
		Rebalancer: rebalancer,
		Spot:       deps.Spot,
		Contract:   deps.Contract,
		Reservoir:  deps.Reservoir,
		Store:      deps.Store,
		Bus:        deps.Bus,
		Reports:    deps.Reports,
		Notifier:   deps.Notifier,
		Metrics:    deps.Metrics,
	}, logger)
}
