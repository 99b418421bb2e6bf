package ledger

import (
	"context"
	"strings"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/pkg/metrics"
)

// DefaultEventLimit caps ListEvents when the caller gives no limit.
const DefaultEventLimit = 100

// Ledger pairs a Store with the publisher that mirrors committed events.
type Ledger struct {
	store Store
	pub   Publisher
}

// New creates a Ledger. pub may be nil.
func New(store Store, pub Publisher) *Ledger {
	return &Ledger{store: store, pub: pub}
}

// Run executes fn in one transaction. Events appended through the Tx are
// published after a successful commit; a publish failure is logged and does
// not fail the call, since the event rows are the record.
func (l *Ledger) Run(ctx context.Context, fn func(Tx) error) error {
	var rec *recordingTx
	err := l.store.WithTx(ctx, func(tx Tx) error {
		rec = &recordingTx{Tx: tx}
		return fn(rec)
	})
	if err != nil {
		return err
	}
	if rec == nil || len(rec.events) == 0 {
		return nil
	}
	for _, ev := range rec.events {
		metrics.Events.WithLabelValues(metricLabel(ev.Type)).Inc()
	}
	if l.pub != nil {
		if err := l.pub.Publish(ctx, rec.events...); err != nil {
			logger.Warn("ledger: audit publish failed", "events", len(rec.events), "error", err)
		}
	}
	return nil
}

// Subscriber reads one row without a transaction.
func (l *Ledger) Subscriber(ctx context.Context, email string) (*domain.Subscriber, error) {
	return l.store.GetSubscriber(ctx, domain.NormalizeEmail(email))
}

// Events lists recent events, newest first.
func (l *Ledger) Events(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	filter.Email = domain.NormalizeEmail(filter.Email)
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = DefaultEventLimit
	}
	return l.store.ListEvents(ctx, filter)
}

// metricLabel folds provider events into one label to bound cardinality.
func metricLabel(t domain.EventType) string {
	if strings.HasPrefix(string(t), domain.ProviderEventPrefix) {
		return "provider"
	}
	return string(t)
}

// recordingTx remembers appended events for post-commit publication.
type recordingTx struct {
	Tx
	events []*domain.Event
}

func (r *recordingTx) AppendEvent(ctx context.Context, ev *domain.Event) error {
	if err := r.Tx.AppendEvent(ctx, ev); err != nil {
		return err
	}
	if ev.ID == 0 {
		return nil
	}
	r.events = append(r.events, ev)
	return nil
}
