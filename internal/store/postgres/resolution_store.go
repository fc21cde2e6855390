package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polycollect/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)

// Upsert inserts or updates a resolution. Re-detection with a different
// method overwrites the earlier row.
func (s *ResolutionStore) Upsert(ctx context.Context, r domain.Resolution) error {
	const query = `
		INSERT INTO resolutions (
			condition_id, outcome, winner_token_id,
			payout_price, detection_method, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (condition_id) DO UPDATE SET
			outcome          = EXCLUDED.outcome,
			winner_token_id  = EXCLUDED.winner_token_id,
			payout_price     = EXCLUDED.payout_price,
			detection_method = EXCLUDED.detection_method,
			resolved_at      = EXCLUDED.resolved_at`

	_, err := s.pool.Exec(ctx, query,
		r.ConditionID, r.Outcome, r.WinnerTokenID,
		r.PayoutPrice, string(r.DetectionMethod), r.ResolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert resolution %s: %w", r.ConditionID, err)
	}
	return nil
}

// Get retrieves a resolution by condition ID.
func (s *ResolutionStore) Get(ctx context.Context, conditionID string) (domain.Resolution, error) {
	var r domain.Resolution
	var method string
	err := s.pool.QueryRow(ctx,
		`SELECT condition_id, outcome, winner_token_id, payout_price, detection_method, resolved_at
		 FROM resolutions WHERE condition_id = $1`,
		conditionID,
	).Scan(&r.ConditionID, &r.Outcome, &r.WinnerTokenID, &r.PayoutPrice, &method, &r.ResolvedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Resolution{}, domain.ErrNotFound
		}
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution %s: %w", conditionID, err)
	}
	r.DetectionMethod = domain.DetectionMethod(method)
	return r, nil
}

// FilterResolved returns the subset of the given condition IDs that already
// have a resolution row. The resolution tracker uses this to batch-skip
// markets it has already settled.
func (s *ResolutionStore) FilterResolved(ctx context.Context, conditionIDs []string) (map[string]struct{}, error) {
	resolved := make(map[string]struct{}, len(conditionIDs))
	if len(conditionIDs) == 0 {
		return resolved, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT condition_id FROM resolutions WHERE condition_id = ANY($1::text[])`,
		conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: filter resolved: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("postgres: scan resolved condition: %w", err)
		}
		resolved[cid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: resolved rows: %w", err)
	}
	return resolved, nil
}

// ListUnresolvedClosed returns condition IDs of closed markets that have no
// resolution row yet.
func (s *ResolutionStore) ListUnresolvedClosed(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.condition_id
		 FROM markets m
		 LEFT JOIN resolutions r ON r.condition_id = m.condition_id
		 WHERE m.closed AND r.condition_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved closed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("postgres: scan unresolved condition: %w", err)
		}
		ids = append(ids, cid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: unresolved rows: %w", err)
	}
	return ids, nil
}
