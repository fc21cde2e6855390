package domain

import (
	"context"
	"time"
)

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListActive(ctx context.Context) ([]Market, error)
	ListByIDs(ctx context.Context, ids []string) ([]Market, error)
	// MarkClosed sets closed=true for every given condition ID that is
	// still open and returns the number of rows updated.
	MarkClosed(ctx context.Context, conditionIDs []string) (int64, error)
}

// PriceStore persists price snapshots.
type PriceStore interface {
	// InsertBatch bulk-inserts snapshots and returns the row count,
	// which equals len(snaps) on success. Empty input is a no-op.
	InsertBatch(ctx context.Context, snaps []PriceSnapshot) (int64, error)
	LatestPrices(ctx context.Context, tokenIDs []string) ([]PriceSnapshot, error)
	History(ctx context.Context, tokenID string, start, end time.Time, limit int) ([]PriceSnapshot, error)
	Count(ctx context.Context) (int64, error)
}

// OrderbookStore persists orderbook snapshots.
type OrderbookStore interface {
	InsertBatch(ctx context.Context, snaps []OrderbookSnapshot) (int64, error)
	Latest(ctx context.Context, tokenID, side string) (OrderbookSnapshot, error)
	History(ctx context.Context, tokenID, side string, start, end time.Time, limit int) ([]OrderbookSnapshot, error)
}

// TradeStore persists streamed trades.
type TradeStore interface {
	// InsertBatch bulk-inserts trades, swallowing duplicate trade IDs,
	// and returns the number of rows actually written.
	InsertBatch(ctx context.Context, trades []Trade) (int64, error)
	// ListRecent returns the newest trades, optionally filtered by
	// token ID (empty string means all tokens).
	ListRecent(ctx context.Context, tokenID string, limit int) ([]Trade, error)
	Count(ctx context.Context, tokenID string) (int64, error)
	// ListBefore returns all trades with ts strictly before the cutoff,
	// for archival ahead of the retention drop.
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// ResolutionStore persists market resolutions.
type ResolutionStore interface {
	Upsert(ctx context.Context, r Resolution) error
	Get(ctx context.Context, conditionID string) (Resolution, error)
	// FilterResolved returns the subset of the given condition IDs that
	// already have a resolution row.
	FilterResolved(ctx context.Context, conditionIDs []string) (map[string]struct{}, error)
	// ListUnresolvedClosed returns condition IDs of closed markets with
	// no resolution row.
	ListUnresolvedClosed(ctx context.Context) ([]string, error)
}
