package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polycollect/internal/domain"
)

// OrderbookStore implements domain.OrderbookStore using PostgreSQL.
//
// Writes go through a parameterised batch rather than COPY: the COPY text
// format cannot carry structured document values for JSONB columns, so the
// bind parameters are marshalled to JSON and cast with $n::jsonb.
type OrderbookStore struct {
	pool *pgxpool.Pool
}

// NewOrderbookStore creates a new OrderbookStore backed by the given pool.
func NewOrderbookStore(pool *pgxpool.Pool) *OrderbookStore {
	return &OrderbookStore{pool: pool}
}

var _ domain.OrderbookStore = (*OrderbookStore)(nil)

const orderbookInsertQuery = `
	INSERT INTO orderbook_snapshots (
		ts, token_id, side, bids, asks, bid_depth_usd, ask_depth_usd
	) VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7)`

// InsertBatch inserts snapshots in one batch round-trip and returns the row
// count. Sides with no levels are stored as {"levels": []}, never NULL.
func (s *OrderbookStore) InsertBatch(ctx context.Context, snaps []domain.OrderbookSnapshot) (int64, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i, snap := range snaps {
		bids, err := marshalSide(snap.Bids)
		if err != nil {
			return 0, fmt.Errorf("postgres: marshal bids for snapshot %d: %w", i, err)
		}
		asks, err := marshalSide(snap.Asks)
		if err != nil {
			return 0, fmt.Errorf("postgres: marshal asks for snapshot %d: %w", i, err)
		}
		batch.Queue(orderbookInsertQuery,
			snap.TS, snap.TokenID, snap.Side,
			bids, asks, snap.BidDepthUSD, snap.AskDepthUSD)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return inserted, fmt.Errorf("postgres: insert orderbook snapshot %d: %w", i, err)
		}
		inserted++
	}
	return inserted, nil
}

// marshalSide encodes a side to JSON, normalising a nil Levels slice to an
// empty array.
func marshalSide(side domain.BookSide) ([]byte, error) {
	if side.Levels == nil {
		side.Levels = [][2]float64{}
	}
	return json.Marshal(side)
}

const orderbookCols = `ts, token_id, side, bids, asks, bid_depth_usd, ask_depth_usd`

// Latest returns the newest snapshot for one token and side.
func (s *OrderbookStore) Latest(ctx context.Context, tokenID, side string) (domain.OrderbookSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderbookCols+` FROM orderbook_snapshots
		 WHERE token_id = $1 AND side = $2
		 ORDER BY ts DESC
		 LIMIT 1`,
		tokenID, side)
	snap, err := scanOrderbook(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OrderbookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("postgres: latest orderbook %s/%s: %w", tokenID, side, err)
	}
	return snap, nil
}

// History returns snapshots for one token and side within [start, end],
// newest first.
func (s *OrderbookStore) History(ctx context.Context, tokenID, side string, start, end time.Time, limit int) ([]domain.OrderbookSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderbookCols+` FROM orderbook_snapshots
		 WHERE token_id = $1 AND side = $2 AND ts >= $3 AND ts <= $4
		 ORDER BY ts DESC
		 LIMIT $5`,
		tokenID, side, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: orderbook history %s/%s: %w", tokenID, side, err)
	}
	defer rows.Close()

	var snaps []domain.OrderbookSnapshot
	for rows.Next() {
		snap, err := scanOrderbook(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan orderbook snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: orderbook rows: %w", err)
	}
	return snaps, nil
}

// scanOrderbook decodes a row, unmarshalling the JSONB side documents into
// typed levels. The raw bytes are decoded here explicitly so reads do not
// depend on driver-level JSONB codec registration.
func scanOrderbook(row pgx.Row) (domain.OrderbookSnapshot, error) {
	var snap domain.OrderbookSnapshot
	var bids, asks []byte
	if err := row.Scan(&snap.TS, &snap.TokenID, &snap.Side,
		&bids, &asks, &snap.BidDepthUSD, &snap.AskDepthUSD); err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	if err := json.Unmarshal(bids, &snap.Bids); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("decode bids: %w", err)
	}
	if err := json.Unmarshal(asks, &snap.Asks); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("decode asks: %w", err)
	}
	return snap, nil
}
