package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/ledger"
)

const subscriberColumns = `
	email, status, token_hash, consumed_token_hash, COALESCE(source,''),
	created_at, updated_at, confirmed_at, COALESCE(confirm_ip,''), COALESCE(confirm_ua,'')`

// LedgerStore implements ledger.Store against PostgreSQL.
type LedgerStore struct{ db *sql.DB }

// NewLedgerStore creates a Postgres-backed ledger.
func NewLedgerStore(db *sql.DB) *LedgerStore { return &LedgerStore{db: db} }

// WithTx runs fn inside BEGIN/COMMIT. Any error, or a panic, rolls back.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *LedgerStore) GetSubscriber(ctx context.Context, email string) (*domain.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`, email)
	return scanSubscriber(row)
}

func (s *LedgerStore) ListEvents(ctx context.Context, f ledger.EventFilter) ([]domain.Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = ledger.DefaultEventLimit
	}

	q := `SELECT id, COALESCE(uid::text,''), COALESCE(email,''), event_type, payload, created_at FROM events WHERE 1=1`
	args := []interface{}{}
	idx := 1
	if f.Email != "" {
		q += fmt.Sprintf(" AND email = $%d", idx)
		args = append(args, f.Email)
		idx++
	}
	if f.Type != "" {
		q += fmt.Sprintf(" AND event_type = $%d", idx)
		args = append(args, string(f.Type))
		idx++
	}
	q += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.UID, &ev.Email, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	var token, consumed sql.NullString
	var confirmedAt sql.NullTime
	err := row.Scan(&sub.Email, &sub.Status, &token, &consumed, &sub.Source,
		&sub.CreatedAt, &sub.UpdatedAt, &confirmedAt, &sub.ConfirmIP, &sub.ConfirmUA)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	if token.Valid {
		sub.TokenHash = &token.String
	}
	if consumed.Valid {
		sub.ConsumedTokenHash = &consumed.String
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		sub.ConfirmedAt = &t
	}
	return &sub, nil
}

// ledgerTx locks every row it reads with FOR UPDATE. Under READ COMMITTED a
// second confirm on the same token blocks on the lock, then re-evaluates
// the predicate against the committed row and no longer matches.
type ledgerTx struct{ tx *sql.Tx }

func (t *ledgerTx) getBy(ctx context.Context, column, value string) (*domain.Subscriber, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE `+column+` = $1 FOR UPDATE`, value)
	return scanSubscriber(row)
}

func (t *ledgerTx) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return t.getBy(ctx, "email", email)
}

func (t *ledgerTx) GetByTokenHash(ctx context.Context, hash string) (*domain.Subscriber, error) {
	return t.getBy(ctx, "token_hash", hash)
}

func (t *ledgerTx) GetByConsumedTokenHash(ctx context.Context, hash string) (*domain.Subscriber, error) {
	return t.getBy(ctx, "consumed_token_hash", hash)
}

func (t *ledgerTx) UpsertPending(ctx context.Context, email, tokenHash, source string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscribers (email, status, token_hash, source, created_at, updated_at)
		VALUES ($1, 'pending', $2, $3, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			status = 'pending',
			token_hash = EXCLUDED.token_hash,
			consumed_token_hash = NULL,
			source = EXCLUDED.source,
			updated_at = NOW(),
			confirmed_at = NULL,
			confirm_ip = NULL,
			confirm_ua = NULL
		WHERE subscribers.status <> 'suppressed'
	`, email, tokenHash, source)
	if err != nil {
		return fmt.Errorf("upsert pending subscriber: %w", err)
	}
	return nil
}

func (t *ledgerTx) MarkConfirmed(ctx context.Context, email, tokenHash string, at time.Time, ip, ua string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE subscribers SET
			status = 'confirmed',
			token_hash = NULL,
			consumed_token_hash = $2,
			confirmed_at = $3,
			confirm_ip = NULLIF($4, ''),
			confirm_ua = NULLIF($5, ''),
			updated_at = $3
		WHERE email = $1 AND token_hash = $2 AND status = 'pending'
	`, email, tokenHash, at.UTC(), ip, ua)
	if err != nil {
		return false, fmt.Errorf("confirm subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm subscriber: %w", err)
	}
	return n == 1, nil
}

func (t *ledgerTx) UpsertSuppressed(ctx context.Context, email, source string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscribers (email, status, source, created_at, updated_at)
		VALUES ($1, 'suppressed', $2, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			status = 'suppressed',
			token_hash = NULL,
			updated_at = NOW()
	`, email, source)
	if err != nil {
		return fmt.Errorf("upsert suppressed subscriber: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendEvent(ctx context.Context, ev *domain.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO events (uid, email, event_type, payload, created_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), NULLIF($2, ''), $3, $4::jsonb, $5)
		ON CONFLICT (uid) DO NOTHING
		RETURNING id
	`, ev.UID, ev.Email, string(ev.Type), string(payload), ev.CreatedAt).Scan(&ev.ID)
	if errors.Is(err, sql.ErrNoRows) {
		ev.ID = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}
