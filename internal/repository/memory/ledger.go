package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/ledger"
)

// LedgerStore is an in-memory ledger.Store. Transactions are serialized by a
// single mutex and work on a copy of the state that replaces the original
// only when the callback succeeds.
type LedgerStore struct {
	mu          sync.Mutex
	subscribers map[string]domain.Subscriber
	events      []domain.Event
	nextID      int64
}

// NewLedgerStore returns an empty store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{subscribers: make(map[string]domain.Subscriber), nextID: 1}
}

func (s *LedgerStore) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		subscribers: make(map[string]domain.Subscriber, len(s.subscribers)),
		events:      append([]domain.Event(nil), s.events...),
		nextID:      s.nextID,
	}
	for k, v := range s.subscribers {
		tx.subscribers[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.subscribers = tx.subscribers
	s.events = tx.events
	s.nextID = tx.nextID
	return nil
}

func (s *LedgerStore) GetSubscriber(_ context.Context, email string) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[email]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &sub, nil
}

func (s *LedgerStore) ListEvents(_ context.Context, f ledger.EventFilter) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if f.Email != "" && ev.Email != f.Email {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Events returns every event in insertion order. Tests use it for
// assertions.
func (s *LedgerStore) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// EventTypes returns the type of every event in insertion order.
func (s *LedgerStore) EventTypes() []domain.EventType {
	evs := s.Events()
	out := make([]domain.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// Emails lists the stored subscriber keys, sorted.
func (s *LedgerStore) Emails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscribers))
	for e := range s.subscribers {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

type memTx struct {
	subscribers map[string]domain.Subscriber
	events      []domain.Event
	nextID      int64
}

func (t *memTx) GetByEmail(_ context.Context, email string) (*domain.Subscriber, error) {
	sub, ok := t.subscribers[email]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &sub, nil
}

func (t *memTx) find(match func(domain.Subscriber) bool) (*domain.Subscriber, error) {
	for _, sub := range t.subscribers {
		if match(sub) {
			s := sub
			return &s, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (t *memTx) GetByTokenHash(_ context.Context, hash string) (*domain.Subscriber, error) {
	return t.find(func(s domain.Subscriber) bool { return s.TokenHash != nil && *s.TokenHash == hash })
}

func (t *memTx) GetByConsumedTokenHash(_ context.Context, hash string) (*domain.Subscriber, error) {
	return t.find(func(s domain.Subscriber) bool { return s.ConsumedTokenHash != nil && *s.ConsumedTokenHash == hash })
}

func (t *memTx) UpsertPending(_ context.Context, email, tokenHash, source string) error {
	now := time.Now().UTC()
	sub, exists := t.subscribers[email]
	if exists && sub.Status == domain.SubscriberSuppressed {
		return nil
	}
	if !exists {
		sub = domain.Subscriber{Email: email, CreatedAt: now}
	}
	h := tokenHash
	sub.Status = domain.SubscriberPending
	sub.TokenHash = &h
	sub.ConsumedTokenHash = nil
	sub.Source = source
	sub.UpdatedAt = now
	sub.ConfirmedAt = nil
	sub.ConfirmIP = ""
	sub.ConfirmUA = ""
	t.subscribers[email] = sub
	return nil
}

func (t *memTx) MarkConfirmed(_ context.Context, email, tokenHash string, at time.Time, ip, ua string) (bool, error) {
	sub, ok := t.subscribers[email]
	if !ok || sub.Status != domain.SubscriberPending || sub.TokenHash == nil || *sub.TokenHash != tokenHash {
		return false, nil
	}
	h := tokenHash
	at = at.UTC()
	sub.Status = domain.SubscriberConfirmed
	sub.TokenHash = nil
	sub.ConsumedTokenHash = &h
	sub.ConfirmedAt = &at
	sub.ConfirmIP = ip
	sub.ConfirmUA = ua
	sub.UpdatedAt = at
	t.subscribers[email] = sub
	return true, nil
}

func (t *memTx) UpsertSuppressed(_ context.Context, email, source string) error {
	now := time.Now().UTC()
	sub, exists := t.subscribers[email]
	if !exists {
		sub = domain.Subscriber{Email: email, Source: source, CreatedAt: now}
	}
	sub.Status = domain.SubscriberSuppressed
	sub.TokenHash = nil
	sub.UpdatedAt = now
	t.subscribers[email] = sub
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, ev *domain.Event) error {
	if ev.UID != "" {
		for _, existing := range t.events {
			if existing.UID == ev.UID {
				ev.ID = 0
				return nil
			}
		}
	}
	ev.ID = t.nextID
	t.nextID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	t.events = append(t.events, *ev)
	return nil
}
