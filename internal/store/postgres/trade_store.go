package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polycollect/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

var tradeInsertCols = []string{"ts", "token_id", "side", "price", "size", "trade_id"}

// InsertBatch bulk-inserts trades via COPY. COPY cannot express ON
// CONFLICT, so a unique violation on trade_id (duplicates from backfilled
// sources; the WebSocket feed carries no IDs) falls back to a parameterised
// batch with ON CONFLICT DO NOTHING. Returns rows actually written.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"trades"},
		tradeInsertCols,
		pgx.CopyFromSlice(len(trades), func(i int) ([]any, error) {
			t := trades[i]
			return []any{t.TS, t.TokenID, t.Side, t.Price, t.Size, t.TradeID}, nil
		}),
	)
	if err == nil {
		return n, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return 0, fmt.Errorf("postgres: copy trades: %w", err)
	}

	return s.insertConflictTolerant(ctx, trades)
}

// insertConflictTolerant is the duplicate-safe slow path.
func (s *TradeStore) insertConflictTolerant(ctx context.Context, trades []domain.Trade) (int64, error) {
	const query = `
		INSERT INTO trades (ts, token_id, side, price, size, trade_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trade_id, ts) WHERE trade_id IS NOT NULL DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, t.TS, t.TokenID, t.Side, t.Price, t.Size, t.TradeID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range trades {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert trade %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListRecent returns the newest trades, optionally filtered by token ID
// (empty string means all tokens).
func (s *TradeStore) ListRecent(ctx context.Context, tokenID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ts, token_id, side, price, size, trade_id FROM trades`
	args := []any{}
	if tokenID != "" {
		query += ` WHERE token_id = $1`
		args = append(args, tokenID)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// Count returns the number of trade rows, optionally filtered by token ID.
func (s *TradeStore) Count(ctx context.Context, tokenID string) (int64, error) {
	query := `SELECT COUNT(*) FROM trades`
	args := []any{}
	if tokenID != "" {
		query += ` WHERE token_id = $1`
		args = append(args, tokenID)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return count, nil
}

// ListBefore returns all trades with ts strictly before the cutoff, oldest
// first, for the cold-storage archiver.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, token_id, side, price, size, trade_id
		 FROM trades
		 WHERE ts < $1
		 ORDER BY ts ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.TS, &t.TokenID, &t.Side, &t.Price, &t.Size, &t.TradeID); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: trade rows: %w", err)
	}
	return trades, nil
}
