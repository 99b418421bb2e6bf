package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/suppression"
	"github.com/lib/pq"
)

// SuppressionRepo implements suppression.Repository with one row per
// address. Concurrent adds commute, so no lock is needed.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) Load(ctx context.Context) (suppression.Set, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT email FROM suppressions`)
	if err != nil {
		return nil, fmt.Errorf("load suppressions: %w", err)
	}
	defer rows.Close()

	set := suppression.NewSet()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		set[email] = struct{}{}
	}
	return set, rows.Err()
}

func (r *SuppressionRepo) Contains(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE email = $1)`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

func (r *SuppressionRepo) AddMany(ctx context.Context, emails []string, source domain.SuppressionSource) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (email, source, created_at)
		SELECT e, $2, NOW() FROM unnest($1::text[]) AS e
		ON CONFLICT (email) DO NOTHING
	`, pq.Array(emails), string(source))
	if err != nil {
		return 0, fmt.Errorf("insert suppressions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert suppressions: %w", err)
	}
	return int(n), nil
}
