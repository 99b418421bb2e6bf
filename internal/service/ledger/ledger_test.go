package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/repository/memory"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	got []*domain.Event
	err error
}

func (c *capturePublisher) Publish(_ context.Context, events ...*domain.Event) error {
	c.got = append(c.got, events...)
	return c.err
}

func TestRun_PublishesAfterCommit(t *testing.T) {
	store := memory.NewLedgerStore()
	pub := &capturePublisher{}
	l := ledger.New(store, pub)

	err := l.Run(context.Background(), func(tx ledger.Tx) error {
		require.NoError(t, tx.UpsertPending(context.Background(), "a@x.io", "h1", "site"))
		return tx.AppendEvent(context.Background(), domain.NewEvent("a@x.io", domain.EventSubscribe, nil))
	})
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
	assert.Equal(t, domain.EventSubscribe, pub.got[0].Type)
	assert.NotEmpty(t, pub.got[0].UID)
}

func TestRun_DuplicateUIDNotRepublished(t *testing.T) {
	store := memory.NewLedgerStore()
	pub := &capturePublisher{}
	l := ledger.New(store, pub)

	for i := 0; i < 2; i++ {
		ev := domain.NewEvent("a@x.io", domain.EventSuppressed, nil)
		ev.UID = "7d1c1c1e-2f0b-5b1e-9a7e-000000000001"
		require.NoError(t, l.Run(context.Background(), func(tx ledger.Tx) error {
			return tx.AppendEvent(context.Background(), ev)
		}))
	}
	assert.Len(t, store.Events(), 1)
	assert.Len(t, pub.got, 1)
}

func TestRun_RollbackDiscardsWritesAndSkipsPublish(t *testing.T) {
	store := memory.NewLedgerStore()
	pub := &capturePublisher{}
	l := ledger.New(store, pub)
	boom := errors.New("boom")

	err := l.Run(context.Background(), func(tx ledger.Tx) error {
		require.NoError(t, tx.UpsertSuppressed(context.Background(), "a@x.io", "resend"))
		require.NoError(t, tx.AppendEvent(context.Background(), domain.NewEvent("a@x.io", domain.EventSuppressed, nil)))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.got)
	assert.Empty(t, store.Events())
	_, err = l.Subscriber(context.Background(), "a@x.io")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRun_PublishFailureDoesNotFail(t *testing.T) {
	l := ledger.New(memory.NewLedgerStore(), &capturePublisher{err: errors.New("kafka down")})
	err := l.Run(context.Background(), func(tx ledger.Tx) error {
		return tx.AppendEvent(context.Background(), domain.NewEvent("", domain.EventConfirmInvalid, nil))
	})
	assert.NoError(t, err)
}

func TestEvents_FiltersAndOrders(t *testing.T) {
	store := memory.NewLedgerStore()
	l := ledger.New(store, nil)
	ctx := context.Background()
	for _, et := range []domain.EventType{domain.EventSubscribe, domain.EventConfirm, domain.EventSubscribe} {
		et := et
		require.NoError(t, l.Run(ctx, func(tx ledger.Tx) error {
			return tx.AppendEvent(ctx, domain.NewEvent("a@x.io", et, nil))
		}))
	}

	evs, err := l.Events(ctx, ledger.EventFilter{Email: "A@X.io", Type: domain.EventSubscribe})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Greater(t, evs[0].ID, evs[1].ID, "newest first")
}

func TestMemoryTx_ConfirmIsConditional(t *testing.T) {
	store := memory.NewLedgerStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.UpsertPending(ctx, "a@x.io", "h1", "site")
	}))
	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		ok, err := tx.MarkConfirmed(ctx, "a@x.io", "stale", now, "", "")
		assert.False(t, ok)
		return err
	}))
	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		ok, err := tx.MarkConfirmed(ctx, "a@x.io", "h1", now, "1.2.3.4", "ua")
		assert.True(t, ok)
		return err
	}))

	sub, err := store.GetSubscriber(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberConfirmed, sub.Status)
	assert.Nil(t, sub.TokenHash)
	require.NotNil(t, sub.ConsumedTokenHash)
	assert.Equal(t, "h1", *sub.ConsumedTokenHash)
}

func TestMemoryTx_SuppressedIsAbsorbing(t *testing.T) {
	store := memory.NewLedgerStore()
	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.UpsertSuppressed(ctx, "a@x.io", "resend"); err != nil {
			return err
		}
		return tx.UpsertPending(ctx, "a@x.io", "h2", "site")
	}))
	sub, err := store.GetSubscriber(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberSuppressed, sub.Status)
	assert.Nil(t, sub.TokenHash)
}
