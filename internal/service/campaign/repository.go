package campaign

import (
	"context"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/service/suppression"
)

// ListSource resolves a list location to its raw line-delimited content.
// *storage.ListFetcher satisfies it.
type ListSource interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// SuppressionSet is the slice of the suppression service the engine needs.
// *suppression.Service satisfies it.
type SuppressionSet interface {
	Load(ctx context.Context) (suppression.Set, error)
	AddMany(ctx context.Context, emails []string, source domain.SuppressionSource) (int, error)
}
