package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polycollect/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketUpsertQuery = `
	INSERT INTO markets (
		id, event_id, condition_id, slug, question,
		outcomes, clob_token_ids, neg_risk, tick_size,
		active, closed, accepting_orders,
		volume_total, liquidity, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12,
		$13, $14, NOW(), NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		event_id         = EXCLUDED.event_id,
		condition_id     = EXCLUDED.condition_id,
		slug             = EXCLUDED.slug,
		question         = EXCLUDED.question,
		outcomes         = EXCLUDED.outcomes,
		clob_token_ids   = EXCLUDED.clob_token_ids,
		neg_risk         = EXCLUDED.neg_risk,
		tick_size        = EXCLUDED.tick_size,
		active           = EXCLUDED.active,
		closed           = markets.closed OR EXCLUDED.closed,
		accepting_orders = EXCLUDED.accepting_orders,
		volume_total     = EXCLUDED.volume_total,
		liquidity        = EXCLUDED.liquidity,
		updated_at       = NOW()`

// Upsert inserts or updates a single market. The closed bit is monotonic:
// a poll that reports a market open again never reopens a closed row.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, marketUpsertQuery, marketUpsertArgs(m)...)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch
// round-trip. A failing record is skipped and reported, not fatal to the
// rest of the batch.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(marketUpsertQuery, marketUpsertArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var firstErr error
	for i := range markets {
		if _, err := br.Exec(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("postgres: upsert market batch item %d (%s): %w", i, markets[i].ID, err)
		}
	}
	return firstErr
}

func marketUpsertArgs(m domain.Market) []any {
	return []any{
		m.ID, nullStr(m.EventID), m.ConditionID, nullStr(m.Slug), m.Question,
		m.Outcomes, m.ClobTokenIDs, m.NegRisk, m.TickSize,
		m.Active, m.Closed, m.AcceptingOrders,
		m.VolumeTotal, m.Liquidity,
	}
}

// nullStr maps an empty string to NULL for optional text columns.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const marketCols = `id, event_id, condition_id, slug, question,
	outcomes, clob_token_ids, neg_risk, tick_size,
	active, closed, accepting_orders,
	volume_total, liquidity, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var eventID, slug *string
	var tickSize, volumeTotal, liquidity *float64
	err := row.Scan(
		&m.ID, &eventID, &m.ConditionID, &slug, &m.Question,
		&m.Outcomes, &m.ClobTokenIDs, &m.NegRisk, &tickSize,
		&m.Active, &m.Closed, &m.AcceptingOrders,
		&volumeTotal, &liquidity, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if eventID != nil {
		m.EventID = *eventID
	}
	if slug != nil {
		m.Slug = *slug
	}
	if tickSize != nil {
		m.TickSize = *tickSize
	}
	if volumeTotal != nil {
		m.VolumeTotal = *volumeTotal
	}
	if liquidity != nil {
		m.Liquidity = *liquidity
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListActive returns markets that are active, not closed, and accepting
// orders. This backs the price and orderbook pollers and the trade
// listener's token discovery.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE active AND NOT closed AND accepting_orders
		 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// ListByIDs returns markets matching the given primary keys.
func (s *MarketStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Market, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by ids: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

// MarkClosed flips closed=true for every given condition ID that is still
// open and returns the number of rows updated.
func (s *MarketStore) MarkClosed(ctx context.Context, conditionIDs []string) (int64, error) {
	if len(conditionIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET closed = TRUE, updated_at = NOW()
		 WHERE condition_id = ANY($1::text[]) AND NOT closed`,
		conditionIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark markets closed: %w", err)
	}
	return tag.RowsAffected(), nil
}
