package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var subscriberCols = []string{"email", "status", "token_hash", "consumed_token_hash", "source",
	"created_at", "updated_at", "confirmed_at", "confirm_ip", "confirm_ua"}

func TestLedgerStore_CommitOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subscribers").
		WithArgs("a@x.io", "hash", "site").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(sqlmock.AnyArg(), "a@x.io", "subscribe", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	ev := domain.NewEvent("a@x.io", domain.EventSubscribe, map[string]any{"source": "site"})
	err = NewLedgerStore(db).WithTx(context.Background(), func(tx ledger.Tx) error {
		if err := tx.UpsertPending(context.Background(), "a@x.io", "hash", "site"); err != nil {
			return err
		}
		return tx.AppendEvent(context.Background(), ev)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_AppendEventSkipsKnownUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ev := domain.NewEvent("a@x.io", domain.EventSuppressed, nil)
	mock.ExpectBegin()
	mock.ExpectQuery("(?s)INSERT INTO events .* ON CONFLICT \\(uid\\) DO NOTHING").
		WithArgs(ev.UID, "a@x.io", "suppressed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err = NewLedgerStore(db).WithTx(context.Background(), func(tx ledger.Tx) error {
		return tx.AppendEvent(context.Background(), ev)
	})
	require.NoError(t, err)
	assert.Zero(t, ev.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subscribers").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = NewLedgerStore(db).WithTx(context.Background(), func(tx ledger.Tx) error {
		return tx.UpsertSuppressed(context.Background(), "a@x.io", "resend")
	})
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerTx_LookupLocksAndScansNullables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM subscribers WHERE token_hash = \\$1 FOR UPDATE").
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(subscriberCols).
			AddRow("a@x.io", "pending", "h1", nil, "site", now, now, nil, "", ""))
	mock.ExpectQuery("FROM subscribers WHERE consumed_token_hash = \\$1 FOR UPDATE").
		WithArgs("h2").
		WillReturnRows(sqlmock.NewRows(subscriberCols))
	mock.ExpectCommit()

	err = NewLedgerStore(db).WithTx(context.Background(), func(tx ledger.Tx) error {
		sub, err := tx.GetByTokenHash(context.Background(), "h1")
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriberPending, sub.Status)
		require.NotNil(t, sub.TokenHash)
		assert.Nil(t, sub.ConsumedTokenHash)
		assert.Nil(t, sub.ConfirmedAt)

		_, err = tx.GetByConsumedTokenHash(context.Background(), "h2")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerTx_MarkConfirmedReportsLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subscribers SET").
		WithArgs("a@x.io", "h1", sqlmock.AnyArg(), "1.2.3.4", "ua").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = NewLedgerStore(db).WithTx(context.Background(), func(tx ledger.Tx) error {
		ok, err := tx.MarkConfirmed(context.Background(), "a@x.io", "h1", time.Now(), "1.2.3.4", "ua")
		assert.False(t, ok)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_ListEventsBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("FROM events WHERE 1=1 AND email = \\$1 AND event_type = \\$2 ORDER BY id DESC LIMIT \\$3").
		WithArgs("a@x.io", "confirm", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "email", "event_type", "payload", "created_at"}).
			AddRow(3, "", "a@x.io", "confirm", []byte(`{"ip":"1.2.3.4"}`), now))

	evs, err := NewLedgerStore(db).ListEvents(context.Background(), ledger.EventFilter{Email: "a@x.io", Type: domain.EventConfirm, Limit: 5})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "1.2.3.4", evs[0].Payload["ip"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
