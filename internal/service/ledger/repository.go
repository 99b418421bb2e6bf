package ledger

import (
	"context"
	"time"

	"github.com/ignite/optin/internal/domain"
)

// Tx is the set of operations available inside one atomic unit of work.
// Lookups lock the returned row where the backend supports it.
type Tx interface {
	// GetByEmail returns ErrNotFound when no row exists.
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	// GetByTokenHash resolves a live (unconsumed) token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Subscriber, error)

	// GetByConsumedTokenHash resolves the hash that already confirmed a row.
	GetByConsumedTokenHash(ctx context.Context, tokenHash string) (*domain.Subscriber, error)

	// UpsertPending creates or resets a non-suppressed row to pending with a
	// fresh token hash, clearing any previous confirmation metadata. A
	// suppressed row is left untouched.
	UpsertPending(ctx context.Context, email, tokenHash, source string) error

	// MarkConfirmed moves a pending row whose live hash still equals
	// tokenHash to confirmed and consumes the hash. It reports false when
	// the condition no longer holds.
	MarkConfirmed(ctx context.Context, email, tokenHash string, at time.Time, ip, userAgent string) (bool, error)

	// UpsertSuppressed creates the row as suppressed or forces an existing
	// row to suppressed, dropping any live token.
	UpsertSuppressed(ctx context.Context, email, source string) error

	// AppendEvent writes one audit record. An event whose UID is already
	// stored is skipped without error and its ID is left at zero, so
	// callers deriving UIDs from an external delivery id get at-most-once
	// recording.
	AppendEvent(ctx context.Context, ev *domain.Event) error
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Email string
	Type  domain.EventType
	Limit int
}

// Store owns transactions and read-only diagnostics.
type Store interface {
	// WithTx runs fn in one transaction, committing only when fn returns nil.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// GetSubscriber reads a row outside any transaction.
	GetSubscriber(ctx context.Context, email string) (*domain.Subscriber, error)

	// ListEvents returns the newest events first.
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error)
}

// Publisher receives committed events. audit.Sink satisfies it.
type Publisher interface {
	Publish(ctx context.Context, events ...*domain.Event) error
}
