// Package app wires the collector daemon together: storage, cache, cold
// storage, venue clients, and the supervised collector loops.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polycollect/internal/collector"
	"github.com/quantfold/polycollect/internal/config"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

// shutdownBudget bounds graceful shutdown; loops still running past it are
// abandoned so a stuck flush cannot hold the process open.
const shutdownBudget = 30 * time.Second

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, assembles the daemon, and blocks until the
// context is cancelled and the daemon has drained, or the shutdown budget
// runs out.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting collector",
		slog.String("log_level", a.cfg.Logging.Level),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	daemon, err := a.buildDaemon(ctx, deps)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownBudget):
		a.logger.Error("shutdown budget exceeded, abandoning remaining loops",
			slog.Duration("budget", shutdownBudget))
		return fmt.Errorf("app: shutdown deadline exceeded after %s", shutdownBudget)
	}
}

// buildDaemon assembles the collectors and runners from wired dependencies
// and performs the initial metadata refresh so the pollers and the trade
// stream have a token universe from the first cycle.
func (a *App) buildDaemon(ctx context.Context, deps *Dependencies) (*collector.Daemon, error) {
	cc := a.cfg.Collector
	logger := a.logger

	metadata := collector.NewMetadataCollector(
		deps.Gamma, deps.MarketStore,
		cc.MaxMarkets,
		time.Duration(cc.MarketRefreshIntervalSeconds)*time.Second,
		logger)
	prices := collector.NewPriceCollector(
		deps.Gamma, deps.PriceStore, deps.PriceCache,
		cc.MaxMarkets,
		time.Duration(cc.PriceSnapshotIntervalSeconds)*time.Second,
		logger)
	orderbooks := collector.NewOrderbookCollector(
		deps.MarketStore, deps.CLOB, deps.OrderbookStore,
		cc.OrderbookDepthLevels,
		time.Duration(cc.OrderbookSnapshotIntervalSeconds)*time.Second,
		logger)
	resolutions := collector.NewResolutionTracker(
		deps.Gamma, deps.ResolutionStore, deps.MarketStore,
		time.Duration(cc.ResolutionCheckIntervalSeconds)*time.Second,
		logger)

	// Seed the markets table before anything else starts; a failure here
	// is not fatal, the metadata loop will retry on its own cadence.
	if err := metadata.Collect(ctx); err != nil {
		logger.Warn("initial market refresh failed", slog.String("error", err.Error()))
	}

	daemon := collector.NewDaemon(logger, deps.Notifier)
	daemon.AddPeriodic(metadata)
	daemon.AddPeriodic(prices)
	daemon.AddPeriodic(orderbooks)
	daemon.AddPeriodic(resolutions)

	if deps.Archiver != nil {
		daemon.AddPeriodic(collector.NewArchiveCollector(
			deps.Archiver,
			a.cfg.S3.ArchiveAfterDays,
			time.Duration(a.cfg.S3.ArchiveIntervalSeconds)*time.Second,
			logger))
	}

	if cc.EnableWebsocketTrades {
		listener := collector.NewTradeListener(
			deps.TradeStore,
			cc.TradeBatchSize,
			time.Duration(cc.TradeBatchDrainTimeoutSeconds)*time.Second,
			cc.TradeQueueCapacity,
			logger)

		stream := polymarket.NewTradeStream(
			a.cfg.Venue.WSHost+"/ws/market",
			time.Duration(cc.WSPingIntervalSeconds)*time.Second,
			cc.WSMaxInstrumentsPerConn,
			listener.HandleEvent,
			logger)

		runner := collector.NewStreamRunner(
			deps.MarketStore, stream,
			time.Duration(cc.MarketRefreshIntervalSeconds)*time.Second,
			logger)

		daemon.AddRunner("trade_listener", listener.Run)
		daemon.AddRunner("trade_stream", runner.Run)
		daemon.SetHealthExtra(func() map[string]any {
			return map[string]any{
				"trade_queue_depth":     listener.QueueDepth(),
				"trades_received":       listener.Received(),
				"trades_written":        listener.Written(),
				"trades_dropped":        listener.Dropped(),
				"trades_malformed":      listener.Malformed(),
				"batches_inserted":      listener.Batches(),
				"last_trade_ts":         healthTS(listener.LastTradeTS()),
				"last_insert_ts":        healthTS(listener.LastInsertTS()),
				"ws_connections_active": stream.ActiveConnections(),
				"ws_reconnections":      stream.Reconnections(),
			}
		})
	}

	return daemon, nil
}

// healthTS renders a snapshot timestamp, empty while nothing has happened
// yet so the health log does not show the zero time.
func healthTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Close tears down all resources in reverse registration order. Safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
