package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

// marketCatalog is the slice of the Gamma client the pollers need.
type marketCatalog interface {
	ListActiveMarkets(ctx context.Context, maxMarkets int) ([]polymarket.RawMarket, error)
}

// MetadataCollector refreshes the markets table from the Gamma API.
type MetadataCollector struct {
	catalog    marketCatalog
	markets    domain.MarketStore
	maxMarkets int
	interval   time.Duration
	logger     *slog.Logger
}

// NewMetadataCollector creates the market metadata refresher.
func NewMetadataCollector(catalog marketCatalog, markets domain.MarketStore, maxMarkets int, interval time.Duration, logger *slog.Logger) *MetadataCollector {
	return &MetadataCollector{
		catalog:    catalog,
		markets:    markets,
		maxMarkets: maxMarkets,
		interval:   interval,
		logger:     logger.With("collector", "market_metadata"),
	}
}

func (c *MetadataCollector) Name() string            { return "market_metadata" }
func (c *MetadataCollector) Interval() time.Duration { return c.interval }

// Collect fetches the active market set and upserts it. Markets that have
// left the active set keep their stored rows; the closed flag only ever
// moves from false to true, via upserts here or the resolution tracker.
func (c *MetadataCollector) Collect(ctx context.Context) error {
	started := time.Now()

	raws, err := c.catalog.ListActiveMarkets(ctx, c.maxMarkets)
	if err != nil {
		return fmt.Errorf("collector: refresh markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(raws))
	for i := range raws {
		markets = append(markets, raws[i].ToDomainMarket())
	}

	if err := c.markets.UpsertBatch(ctx, markets); err != nil {
		return fmt.Errorf("collector: upsert markets: %w", err)
	}

	c.logger.Info("market metadata refreshed",
		"markets", len(markets),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}
