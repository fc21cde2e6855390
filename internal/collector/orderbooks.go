package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

// bookSource is the slice of the CLOB client the orderbook poller needs.
type bookSource interface {
	GetOrderbooks(ctx context.Context, tokenIDs []string) ([]polymarket.RawOrderbook, error)
}

// OrderbookCollector snapshots top-of-book depth for every tracked token.
type OrderbookCollector struct {
	markets  domain.MarketStore
	books    bookSource
	store    domain.OrderbookStore
	depth    int
	interval time.Duration
	logger   *slog.Logger
}

// NewOrderbookCollector creates the orderbook depth poller.
func NewOrderbookCollector(markets domain.MarketStore, books bookSource, store domain.OrderbookStore, depth int, interval time.Duration, logger *slog.Logger) *OrderbookCollector {
	return &OrderbookCollector{
		markets:  markets,
		books:    books,
		store:    store,
		depth:    depth,
		interval: interval,
		logger:   logger.With("collector", "orderbook_snapshots"),
	}
}

func (c *OrderbookCollector) Name() string            { return "orderbook_snapshots" }
func (c *OrderbookCollector) Interval() time.Duration { return c.interval }

// Collect reads the tracked token set from the markets table, fetches the
// books in batches, and stores one top-N snapshot per token.
func (c *OrderbookCollector) Collect(ctx context.Context) error {
	started := time.Now()

	markets, err := c.markets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("collector: list active markets: %w", err)
	}

	tokens, sides := tokenSides(markets)
	if len(tokens) == 0 {
		c.logger.Info("no tracked tokens, skipping orderbook cycle")
		return nil
	}

	books, err := c.books.GetOrderbooks(ctx, tokens)
	if err != nil {
		return fmt.Errorf("collector: fetch orderbooks: %w", err)
	}

	now := time.Now().UTC()
	snaps := make([]domain.OrderbookSnapshot, 0, len(books))
	for i := range books {
		b := &books[i]
		side, ok := sides[b.AssetID]
		if !ok {
			continue
		}

		bids := domain.BookSide{Levels: polymarket.Levels(b.Bids, c.depth)}
		asks := domain.BookSide{Levels: polymarket.Levels(b.Asks, c.depth)}
		snaps = append(snaps, domain.OrderbookSnapshot{
			TS:          now,
			TokenID:     b.AssetID,
			Side:        side,
			Bids:        bids,
			Asks:        asks,
			BidDepthUSD: bids.DepthUSD(),
			AskDepthUSD: asks.DepthUSD(),
		})
	}

	n, err := c.store.InsertBatch(ctx, snaps)
	if err != nil {
		return fmt.Errorf("collector: insert orderbook snapshots: %w", err)
	}

	c.logger.Info("orderbook snapshots collected",
		"inserted", n,
		"tokens", len(tokens),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// tokenSides flattens the binary token pairs of the given markets into a
// token list plus a token-to-side map. The first token of a pair is the
// yes side and the second the no side; empty entries are skipped and
// tokens beyond the pair are ignored.
func tokenSides(markets []domain.Market) ([]string, map[string]string) {
	var tokens []string
	sides := make(map[string]string)

	for _, m := range markets {
		for i, tokenID := range m.ClobTokenIDs {
			if i > 1 {
				break
			}
			if tokenID == "" {
				continue
			}
			if _, dup := sides[tokenID]; dup {
				continue
			}
			side := "yes"
			if i == 1 {
				side = "no"
			}
			sides[tokenID] = side
			tokens = append(tokens, tokenID)
		}
	}
	return tokens, sides
}
