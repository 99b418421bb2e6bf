// Package snapshot stores the suppression set as one newline-delimited,
// sorted, de-duplicated text object in blob storage.
//
// Every mutation reads the whole snapshot, merges in memory and rewrites the
// object. Writers are serialized through a distributed lock so concurrent
// AddMany calls cannot lose each other's updates; readers never lock and see
// either the previous or the next complete snapshot.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/distlock"
	"github.com/ignite/optin/internal/service/suppression"
	"github.com/ignite/optin/internal/storage"
)

const contentType = "text/plain; charset=utf-8"

// Repository implements suppression.Repository on a storage.Blob.
type Repository struct {
	blob  storage.Blob
	key   string
	locks distlock.Factory
	poll  time.Duration
}

// New creates a snapshot repository for the object at key.
func New(blob storage.Blob, key string, locks distlock.Factory) *Repository {
	return &Repository{blob: blob, key: key, locks: locks, poll: 25 * time.Millisecond}
}

// Decode parses a snapshot. Lines are trimmed and lower-cased; blanks are
// skipped.
func Decode(data []byte) suppression.Set {
	set := suppression.NewSet()
	for _, line := range strings.Split(string(data), "\n") {
		if e := domain.NormalizeEmail(line); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// Encode renders set as sorted lines with a trailing newline. An empty set
// encodes to an empty object.
func Encode(set suppression.Set) []byte {
	if len(set) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range set.Sorted() {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (r *Repository) Load(ctx context.Context) (suppression.Set, error) {
	data, err := r.blob.Get(ctx, r.key)
	if errors.Is(err, storage.ErrNotFound) {
		return suppression.NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", r.key, err)
	}
	return Decode(data), nil
}

func (r *Repository) Contains(ctx context.Context, email string) (bool, error) {
	set, err := r.Load(ctx)
	if err != nil {
		return false, err
	}
	return set.Contains(email), nil
}

// AddMany merges emails into the snapshot under the writer lock. The object
// is only rewritten when at least one address is new.
func (r *Repository) AddMany(ctx context.Context, emails []string, _ domain.SuppressionSource) (int, error) {
	added := 0
	err := distlock.WithLock(ctx, r.locks("suppression-snapshot:"+r.key), r.poll, func(ctx context.Context) error {
		set, err := r.Load(ctx)
		if err != nil {
			return err
		}
		for _, e := range emails {
			if set.Add(e) {
				added++
			}
		}
		if added == 0 {
			return nil
		}
		if err := r.blob.Put(ctx, r.key, Encode(set), contentType); err != nil {
			return fmt.Errorf("write snapshot %s: %w", r.key, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}
