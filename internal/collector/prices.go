package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

// PriceCollector snapshots per-token prices at minute cadence. Prices come
// from the Gamma market listing, not the CLOB, so one paginated fetch
// covers every tracked token.
type PriceCollector struct {
	catalog    marketCatalog
	prices     domain.PriceStore
	cache      domain.PriceCache // nil when the cache is disabled
	maxMarkets int
	interval   time.Duration
	logger     *slog.Logger
}

// NewPriceCollector creates the price snapshot poller. cache may be nil.
func NewPriceCollector(catalog marketCatalog, prices domain.PriceStore, cache domain.PriceCache, maxMarkets int, interval time.Duration, logger *slog.Logger) *PriceCollector {
	return &PriceCollector{
		catalog:    catalog,
		prices:     prices,
		cache:      cache,
		maxMarkets: maxMarkets,
		interval:   interval,
		logger:     logger.With("collector", "price_snapshots"),
	}
}

func (c *PriceCollector) Name() string            { return "price_snapshots" }
func (c *PriceCollector) Interval() time.Duration { return c.interval }

// Collect fetches active markets, extracts one snapshot per token, and
// bulk-inserts them with a single shared timestamp. The cache mirror is
// best effort.
func (c *PriceCollector) Collect(ctx context.Context) error {
	started := time.Now()

	raws, err := c.catalog.ListActiveMarkets(ctx, c.maxMarkets)
	if err != nil {
		return fmt.Errorf("collector: fetch markets for prices: %w", err)
	}

	now := time.Now().UTC()
	snaps, skipped := extractPriceSnapshots(now, raws)

	n, err := c.prices.InsertBatch(ctx, snaps)
	if err != nil {
		return fmt.Errorf("collector: insert price snapshots: %w", err)
	}

	if c.cache != nil {
		var cacheErrs int
		for _, s := range snaps {
			if err := c.cache.SetPrice(ctx, s.TokenID, s.Price, s.TS); err != nil {
				cacheErrs++
			}
		}
		if cacheErrs > 0 {
			c.logger.Warn("price cache mirror incomplete", "failed", cacheErrs)
		}
	}

	c.logger.Info("price snapshots collected",
		"inserted", n,
		"skipped", skipped,
		"markets", len(raws),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// extractPriceSnapshots zips each market's token IDs with its outcome
// prices. Tokens whose price is missing or unparseable are skipped and
// counted rather than failing the cycle.
func extractPriceSnapshots(ts time.Time, raws []polymarket.RawMarket) ([]domain.PriceSnapshot, int) {
	var snaps []domain.PriceSnapshot
	var skipped int

	seen := make(map[string]struct{})
	for i := range raws {
		m := &raws[i]
		tokens := m.TokenIDs()
		prices := m.OutcomePrices

		for j, tokenID := range tokens {
			if tokenID == "" {
				skipped++
				continue
			}
			if _, dup := seen[tokenID]; dup {
				continue
			}
			if j >= len(prices) {
				skipped++
				continue
			}
			price, err := strconv.ParseFloat(prices[j], 64)
			if err != nil {
				skipped++
				continue
			}
			seen[tokenID] = struct{}{}

			snaps = append(snaps, domain.PriceSnapshot{
				TS:             ts,
				TokenID:        tokenID,
				Price:          price,
				Volume24h:      float64(m.Volume24h),
				Liquidity:      optFloat(float64(m.Liquidity)),
				Spread:         optFloat(float64(m.Spread)),
				LastTradePrice: optFloat(float64(m.LastTradePrice)),
			})
		}
	}
	return snaps, skipped
}

// optFloat returns nil for zero values, which on this API means the field
// was absent.
func optFloat(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
