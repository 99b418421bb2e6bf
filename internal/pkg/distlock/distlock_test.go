package distlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLock_ExclusiveAndOwnedRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := NewRedisLock(rdb, "suppression", time.Minute)
	b := NewRedisLock(rdb, "suppression", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own the key, so its release is a no-op.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:suppression"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:suppression"))
}

func TestWithLock_SerializesLocalHolders(t *testing.T) {
	factory := NewFactory(nil, nil, time.Minute)
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, factory("serial-test"), time.Millisecond, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestWithLock_GivesUpWhenContextEnds(t *testing.T) {
	held := NewLocalLock("busy-test")
	ok, _ := held.Acquire(context.Background())
	require.True(t, ok)
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := WithLock(ctx, NewLocalLock("busy-test"), time.Millisecond, func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.True(t, errors.Is(err, ErrNotAcquired))
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	boom := errors.New("boom")
	err := WithLock(context.Background(), NewLocalLock("err-test"), 0, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ok, _ := NewLocalLock("err-test").Acquire(context.Background())
	assert.True(t, ok)
}

func TestPGAdvisoryLock_UsesOneConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "suppression")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
