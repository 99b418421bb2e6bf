package memory

import (
	"context"
	"sync"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/suppression"
)

// SuppressionRepo is an in-memory suppression.Repository.
type SuppressionRepo struct {
	mu  sync.RWMutex
	set suppression.Set
}

// NewSuppressionRepo returns a repository seeded with emails.
func NewSuppressionRepo(emails ...string) *SuppressionRepo {
	return &SuppressionRepo{set: suppression.NewSet(emails...)}
}

func (r *SuppressionRepo) Load(_ context.Context) (suppression.Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(suppression.Set, len(r.set))
	for e := range r.set {
		out[e] = struct{}{}
	}
	return out, nil
}

func (r *SuppressionRepo) Contains(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Contains(email), nil
}

func (r *SuppressionRepo) AddMany(_ context.Context, emails []string, _ domain.SuppressionSource) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range emails {
		if r.set.Add(e) {
			n++
		}
	}
	return n, nil
}
