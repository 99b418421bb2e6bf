// Package audit mirrors committed ledger events to external sinks. The
// events table stays the system of record; sinks are best-effort fan-out
// for downstream consumers.
package audit

import (
	"context"
	"errors"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
)

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, events ...*domain.Event) error
	Close() error
}

// LogSink writes one structured log line per event.
type LogSink struct{}

// Publish logs each event at INFO. Emails are redacted by the logger.
func (LogSink) Publish(_ context.Context, events ...*domain.Event) error {
	for _, ev := range events {
		logger.Info("audit: event", "uid", ev.UID, "type", string(ev.Type), "email", ev.Email)
	}
	return nil
}

// Close is a no-op.
func (LogSink) Close() error { return nil }

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, events ...*domain.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
