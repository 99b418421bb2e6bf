package suppression

import (
	"context"
	"sort"

	"github.com/ignite/optin/internal/domain"
)

// Repository defines the data access contract for the suppression set.
// Addresses handed to a Repository are already normalized and unique.
type Repository interface {
	// Load returns every member.
	Load(ctx context.Context) (Set, error)

	// Contains reports membership of one address.
	Contains(ctx context.Context, email string) (bool, error)

	// AddMany inserts the addresses and returns how many were not present
	// before. Existing members are left untouched.
	AddMany(ctx context.Context, emails []string, source domain.SuppressionSource) (int, error)
}

// Set is an in-memory suppression snapshot.
type Set map[string]struct{}

// NewSet builds a set from already-normalized addresses.
func NewSet(emails ...string) Set {
	s := make(Set, len(emails))
	for _, e := range emails {
		if e != "" {
			s[e] = struct{}{}
		}
	}
	return s
}

// Contains reports membership.
func (s Set) Contains(email string) bool {
	_, ok := s[email]
	return ok
}

// Add inserts email and reports whether it was new.
func (s Set) Add(email string) bool {
	if _, ok := s[email]; ok {
		return false
	}
	s[email] = struct{}{}
	return true
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
