package suppression

import (
	"context"
	"fmt"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/pkg/metrics"
)

// Service implements suppression business logic. It is safe for concurrent
// use as long as the Repository is.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Contains reports whether email is suppressed.
func (s *Service) Contains(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, ErrEmptyEmail
	}
	return s.repo.Contains(ctx, email)
}

// Load returns the full suppression snapshot.
func (s *Service) Load(ctx context.Context) (Set, error) {
	set, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading suppression set: %w", err)
	}
	return set, nil
}

// Count returns the number of members.
func (s *Service) Count(ctx context.Context) (int, error) {
	set, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(set), nil
}

// Add suppresses one address. It is idempotent and reports whether the
// address was newly added.
func (s *Service) Add(ctx context.Context, email string, source domain.SuppressionSource) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, ErrEmptyEmail
	}
	n, err := s.AddMany(ctx, []string{email}, source)
	return n > 0, err
}

// AddMany suppresses every address in one repository call and returns the
// count of newly-added members. Blank entries and duplicates are dropped.
func (s *Service) AddMany(ctx context.Context, emails []string, source domain.SuppressionSource) (int, error) {
	seen := make(map[string]struct{}, len(emails))
	clean := make([]string, 0, len(emails))
	for _, e := range emails {
		e = domain.NormalizeEmail(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		clean = append(clean, e)
	}
	if len(clean) == 0 {
		return 0, nil
	}

	added, err := s.repo.AddMany(ctx, clean, source)
	if err != nil {
		return 0, fmt.Errorf("adding %d suppressions: %w", len(clean), err)
	}
	if added > 0 {
		metrics.SuppressionAdds.WithLabelValues(string(source)).Add(float64(added))
		logger.Info("suppression: added", "count", added, "source", string(source))
	}
	return added, nil
}
