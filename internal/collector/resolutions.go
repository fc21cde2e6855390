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

// closedCatalog is the slice of the Gamma client the tracker needs.
type closedCatalog interface {
	ListClosedMarkets(ctx context.Context, maxPages int) ([]polymarket.RawMarket, error)
}

// resolutionMaxPages bounds the closed-events scan per cycle. Three pages
// of 100 events comfortably cover everything that can close between two
// ten-minute cycles.
const resolutionMaxPages = 3

// ResolutionTracker detects resolved markets among recently closed events
// and records the winning outcome.
type ResolutionTracker struct {
	catalog     closedCatalog
	resolutions domain.ResolutionStore
	markets     domain.MarketStore
	interval    time.Duration
	logger      *slog.Logger
}

// NewResolutionTracker creates the resolution detector.
func NewResolutionTracker(catalog closedCatalog, resolutions domain.ResolutionStore, markets domain.MarketStore, interval time.Duration, logger *slog.Logger) *ResolutionTracker {
	return &ResolutionTracker{
		catalog:     catalog,
		resolutions: resolutions,
		markets:     markets,
		interval:    interval,
		logger:      logger.With("collector", "resolution_tracker"),
	}
}

func (t *ResolutionTracker) Name() string            { return "resolution_tracker" }
func (t *ResolutionTracker) Interval() time.Duration { return t.interval }

// Collect scans recently closed markets, skips those already resolved in
// one batched lookup, infers winners from final prices, and marks the
// scanned condition IDs closed in the markets table.
func (t *ResolutionTracker) Collect(ctx context.Context) error {
	started := time.Now()

	raws, err := t.catalog.ListClosedMarkets(ctx, resolutionMaxPages)
	if err != nil {
		return fmt.Errorf("collector: list closed markets: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}

	conditionIDs := make([]string, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i := range raws {
		cid := raws[i].Condition()
		if _, dup := seen[cid]; dup {
			continue
		}
		seen[cid] = struct{}{}
		conditionIDs = append(conditionIDs, cid)
	}

	resolved, err := t.resolutions.FilterResolved(ctx, conditionIDs)
	if err != nil {
		return fmt.Errorf("collector: filter resolved: %w", err)
	}

	now := time.Now().UTC()
	var detected, undetermined int
	for i := range raws {
		m := &raws[i]
		if _, done := resolved[m.Condition()]; done {
			continue
		}

		res, ok := inferResolution(m, now)
		if !ok {
			undetermined++
			continue
		}
		if err := t.resolutions.Upsert(ctx, res); err != nil {
			return fmt.Errorf("collector: record resolution: %w", err)
		}
		resolved[m.Condition()] = struct{}{}
		detected++
	}

	closedRows, err := t.markets.MarkClosed(ctx, conditionIDs)
	if err != nil {
		return fmt.Errorf("collector: mark markets closed: %w", err)
	}

	t.logger.Info("resolution cycle complete",
		"scanned", len(conditionIDs),
		"detected", detected,
		"undetermined", undetermined,
		"newly_closed", closedRows,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// inferResolution detects a winner from final prices: exactly one outcome
// priced at 1.0 wins. Anything else (no settled price yet, several at 1.0,
// or a malformed price list) is undetermined and retried next cycle. The
// outcome label and winner token are best effort; a detection with a
// ragged outcomes list still records the payout.
func inferResolution(m *polymarket.RawMarket, now time.Time) (domain.Resolution, bool) {
	winner := -1
	for i, raw := range m.OutcomePrices {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if price == 1.0 {
			if winner >= 0 {
				return domain.Resolution{}, false
			}
			winner = i
		}
	}
	if winner < 0 {
		return domain.Resolution{}, false
	}

	res := domain.Resolution{
		ConditionID:     m.Condition(),
		PayoutPrice:     1.0,
		DetectionMethod: domain.DetectionFinalPrices,
		ResolvedAt:      now,
	}
	if winner < len(m.Outcomes) {
		outcome := m.Outcomes[winner]
		res.Outcome = &outcome
	}
	if tokens := m.TokenIDs(); winner < len(tokens) {
		token := tokens[winner]
		res.WinnerTokenID = &token
	}
	return res, true
}
