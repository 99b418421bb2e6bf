package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/optin/internal/pkg/httpretry"
)

// MaxListBytes bounds a fetched address list.
const MaxListBytes = 64 << 20

// BucketGetter reads from an arbitrary S3 bucket. *S3 satisfies it.
type BucketGetter interface {
	GetFrom(ctx context.Context, bucket, key string) ([]byte, error)
}

// ListFetcher resolves a list location to its raw bytes. Locations are
// http(s) URLs, s3://bucket/key references, or keys in the local Blob.
type ListFetcher struct {
	blob Blob
	s3   BucketGetter
	http *httpretry.RetryClient
}

// NewListFetcher wires the fetcher. s3 may be nil, in which case s3://
// locations are rejected.
func NewListFetcher(blob Blob, s3 BucketGetter, client *httpretry.RetryClient) *ListFetcher {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &ListFetcher{blob: blob, s3: s3, http: client}
}

// Fetch returns the content stored at location.
func (f *ListFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return nil, errors.New("storage: empty list location")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return f.http.GetBody(ctx, location, MaxListBytes)
	case strings.HasPrefix(location, "s3://"):
		if f.s3 == nil {
			return nil, errors.New("storage: s3 locations are not configured")
		}
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("storage: malformed location %q", location)
		}
		return f.s3.GetFrom(ctx, bucket, key)
	default:
		return f.blob.Get(ctx, location)
	}
}
