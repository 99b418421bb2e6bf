package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RateCounter implements ratelimit.Counter with one row per identity and
// window. The upsert increments and returns in a single statement.
type RateCounter struct{ db *sql.DB }

// NewRateCounter creates a Postgres-backed rate counter.
func NewRateCounter(db *sql.DB) *RateCounter { return &RateCounter{db: db} }

func (c *RateCounter) Incr(ctx context.Context, identity string, window time.Time) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (identity, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (identity, window_start) DO UPDATE SET count = rate_limits.count + 1
		RETURNING count
	`, identity, window.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit: %w", err)
	}
	return n, nil
}

// Prune deletes windows that started before cutoff and returns how many
// rows were removed.
func (c *RateCounter) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return res.RowsAffected()
}
