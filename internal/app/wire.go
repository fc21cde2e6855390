package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/quantfold/polycollect/internal/blob/s3"
	"github.com/quantfold/polycollect/internal/cache/redis"
	"github.com/quantfold/polycollect/internal/config"
	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/notify"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
	"github.com/quantfold/polycollect/internal/store/postgres"
)

// Dependencies bundles everything the daemon needs. Optional components
// (cache, archiver) are nil when their configuration is absent.
type Dependencies struct {
	MarketStore     domain.MarketStore
	PriceStore      domain.PriceStore
	OrderbookStore  domain.OrderbookStore
	TradeStore      domain.TradeStore
	ResolutionStore domain.ResolutionStore

	PriceCache domain.PriceCache
	Archiver   domain.Archiver
	Notifier   *notify.Notifier

	Gamma *polymarket.GammaClient
	CLOB  *polymarket.CLOBClient
}

// Wire constructs the concrete dependency implementations and returns them
// with a cleanup function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL / TimescaleDB ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:                 cfg.Database.DSN,
		MinConns:            cfg.Database.MinPoolSize,
		MaxConns:            cfg.Database.MaxPoolSize,
		CommandTimeout:      time.Duration(cfg.Database.CommandTimeoutSeconds) * time.Second,
		MaxInactiveLifetime: time.Duration(cfg.Database.MaxInactiveLifetimeSeconds) * time.Second,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	applied, err := pgClient.RunMigrations(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PriceStore = postgres.NewPriceStore(pool)
	deps.OrderbookStore = postgres.NewOrderbookStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.ResolutionStore = postgres.NewResolutionStore(pool)

	// --- Redis latest-price cache (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.PriceCache = redis.NewPriceCache(redisClient)
	}

	// --- S3 cold storage (optional) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, deps.TradeStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Venue clients ---
	buckets := polymarket.NewBuckets()
	deps.Gamma = polymarket.NewGammaClient(cfg.Venue.GammaHost, 0, buckets.Gamma, logger)
	deps.CLOB = polymarket.NewCLOBClient(cfg.Venue.HTTPHost, 0, buckets.ClobRead, logger)

	return deps, cleanup, nil
}
