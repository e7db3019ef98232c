package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, kalshi_id, kalshi_title, kalshi_url,
	poly_id, poly_title, poly_url,
	similarity, match_type, direction,
	spread, spread_pct, kalshi_yes, kalshi_no, poly_yes, poly_no,
	detected_at`

// InsertBatch stores all opportunities from one refresh in a single
// transaction.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	const query = `
		INSERT INTO opportunities (
			id, kalshi_id, kalshi_title, kalshi_url,
			poly_id, poly_title, poly_url,
			similarity, match_type, direction,
			spread, spread_pct, kalshi_yes, kalshi_no, poly_yes, poly_no,
			detected_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17
		)`

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(query,
			o.ID, o.Match.Kalshi.ID, o.Match.Kalshi.Title, o.Match.Kalshi.URL,
			o.Match.Polymarket.ID, o.Match.Polymarket.Title, o.Match.Polymarket.URL,
			o.Match.Similarity, string(o.Match.MatchType), string(o.Direction),
			o.Spread, o.SpreadPct, o.KalshiYes, o.KalshiNo, o.PolyYes, o.PolyNo,
			o.DetectedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunities: %w", err)
		}
	}
	return nil
}

// ListRecent returns the most recent opportunities ordered by
// detection time descending.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// ListSince returns opportunities filtered by the time window in opts,
// newest first.
func (s *OpportunityStore) ListSince(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE TRUE`
	args := []any{}
	n := 0
	if opts.Since != nil {
		n++
		query += fmt.Sprintf(" AND detected_at >= $%d", n)
		args = append(args, *opts.Since)
	}
	if opts.Until != nil {
		n++
		query += fmt.Sprintf(" AND detected_at < $%d", n)
		args = append(args, *opts.Until)
	}
	query += " ORDER BY detected_at DESC"
	if opts.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities since: %w", err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// Count returns the total number of stored opportunities.
func (s *OpportunityStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count opportunities: %w", err)
	}
	return count, nil
}

// DeleteBefore removes opportunities detected before the cutoff and
// returns the number of rows deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM opportunities WHERE detected_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var (
			o         domain.Opportunity
			matchType string
			direction string
		)
		if err := rows.Scan(
			&o.ID, &o.Match.Kalshi.ID, &o.Match.Kalshi.Title, &o.Match.Kalshi.URL,
			&o.Match.Polymarket.ID, &o.Match.Polymarket.Title, &o.Match.Polymarket.URL,
			&o.Match.Similarity, &matchType, &direction,
			&o.Spread, &o.SpreadPct, &o.KalshiYes, &o.KalshiNo, &o.PolyYes, &o.PolyNo,
			&o.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		o.Match.MatchType = domain.MatchType(matchType)
		o.Direction = domain.Direction(direction)
		o.Match.Kalshi.Platform = domain.PlatformKalshi
		o.Match.Polymarket.Platform = domain.PlatformPolymarket
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
