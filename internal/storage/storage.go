// Package storage provides whole-object blob persistence for suppression
// snapshots and imported address lists, on local disk, S3 or memory.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/optin/internal/config"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// Blob stores opaque objects by key. Put replaces an object atomically:
// concurrent readers observe either the previous or the new content.
type Blob interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// New creates the Blob selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (Blob, error) {
	switch cfg.Type {
	case "aws":
		s3b, err := NewS3(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
		if err != nil {
			return nil, fmt.Errorf("initializing S3 storage: %w", err)
		}
		return s3b, nil
	case "memory":
		return NewMemory(), nil
	case "local", "":
		return NewLocal(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("storage: unknown type %q", cfg.Type)
	}
}
