// Package distlock serializes read-modify-write cycles across processes.
// The snapshot suppression backend rewrites a whole blob per update and
// relies on these locks so concurrent appends are not lost.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by WithLock when the context ends before the
// lock could be taken.
var ErrNotAcquired = errors.New("distlock: lock not acquired")

// DistLock is the interface for distributed locking.
// A DistLock value belongs to one holder; callers create one per critical
// section through a Factory.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Factory creates a fresh lock for key.
type Factory func(key string) DistLock

// NewFactory picks the best available backend: Redis when a client is
// configured, PostgreSQL advisory locks when only a database is, and an
// in-process lock otherwise.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return func(key string) DistLock { return NewRedisLock(redisClient, key, ttl) }
	case db != nil:
		return func(key string) DistLock { return NewPGAdvisoryLock(db, key) }
	default:
		return func(key string) DistLock { return NewLocalLock(key) }
	}
}

// WithLock polls Acquire every poll interval until it succeeds or ctx ends,
// runs fn, and always releases. Release uses a detached context so a
// cancelled caller still frees the lock.
func WithLock(ctx context.Context, l DistLock, poll time.Duration, fn func(context.Context) error) error {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = l.Release(rctx)
	}()
	return fn(ctx)
}

// PGAdvisoryLock implements DistLock with session-scoped advisory locks.
// The session is a single pinned *sql.Conn: the unlock must run on the same
// backend connection that took the lock.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a deterministic lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire calls pg_try_advisory_lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, errors.New("distlock: advisory lock already held")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: pin connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("distlock: try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

var localLocks sync.Map // key -> chan struct{}

// LocalLock is an in-process lock keyed by name, for single-instance
// deployments and tests.
type LocalLock struct {
	ch   chan struct{}
	held bool
}

// NewLocalLock returns a lock sharing state with every other LocalLock of
// the same key.
func NewLocalLock(key string) *LocalLock {
	ch, _ := localLocks.LoadOrStore(key, make(chan struct{}, 1))
	return &LocalLock{ch: ch.(chan struct{})}
}

// Acquire never blocks.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	select {
	case l.ch <- struct{}{}:
		l.held = true
		return true, nil
	default:
		return false, nil
	}
}

// Release frees the lock if this value holds it.
func (l *LocalLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	<-l.ch
	return nil
}
