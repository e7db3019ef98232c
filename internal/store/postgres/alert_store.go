package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert stores a raised alert.
func (s *AlertStore) Insert(ctx context.Context, alert domain.Alert) error {
	const query = `
		INSERT INTO alerts (id, alert_type, title, message, spread_pct, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		alert.ID, string(alert.Type), alert.Title, alert.Message, alert.SpreadPct, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// ListRecent returns the most recent alerts, newest first.
func (s *AlertStore) ListRecent(ctx context.Context, limit int) ([]domain.Alert, error) {
	query := `SELECT id, alert_type, title, message, spread_pct, created_at
		FROM alerts ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			a         domain.Alert
			alertType string
		)
		if err := rows.Scan(&a.ID, &alertType, &a.Title, &a.Message, &a.SpreadPct, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		a.Type = domain.AlertType(alertType)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate alerts: %w", err)
	}
	return alerts, nil
}

// DeleteBefore removes alerts created before the cutoff and returns
// the number of rows deleted.
func (s *AlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM alerts WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
