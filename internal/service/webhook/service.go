package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/ignite/optin/internal/pkg/metrics"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/ignite/optin/internal/service/suppression"
)

// providerName is recorded on suppressed events raised by this package.
const providerName = "resend"

// deliveryNamespace seeds event UIDs derived from svix message ids.
var deliveryNamespace = uuid.MustParse("5b0f6a2e-8d3c-4f59-9a51-0c7e2d41b8aa")

// eventUID is stable across redeliveries of the same message, so a retried
// delivery cannot append its events twice.
func eventUID(deliveryID string, kind domain.EventType) string {
	return uuid.NewSHA1(deliveryNamespace, []byte(deliveryID+":"+string(kind))).String()
}

// Result summarizes one ingested notification.
type Result struct {
	Type       string
	Email      string
	Suppressed bool
}

// Service verifies and ingests provider notifications.
type Service struct {
	verifier    *Verifier
	ledger      *ledger.Ledger
	suppression *suppression.Service
}

// NewService wires the ingester. A nil verifier makes every call fail with
// ErrNotConfigured.
func NewService(v *Verifier, l *ledger.Ledger, supp *suppression.Service) *Service {
	return &Service{verifier: v, ledger: l, suppression: supp}
}

// Ingest verifies body against h and records it. Signature and header
// problems never reach storage.
func (s *Service) Ingest(ctx context.Context, h Headers, body []byte) (*Result, error) {
	res, err := s.ingest(ctx, h, body)
	metrics.WebhookRequests.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (s *Service) ingest(ctx context.Context, h Headers, body []byte) (*Result, error) {
	if s.verifier == nil {
		return nil, ErrNotConfigured
	}
	if !h.complete() {
		return nil, ErrMissingHeaders
	}
	if err := s.verifier.Verify(h, body); err != nil {
		logger.Warn("webhook: verification failed", "svix_id", h.ID, "error", err)
		return nil, err
	}

	var event map[string]any
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	typ, _ := event["type"].(string)
	typ = strings.ToLower(strings.TrimSpace(typ))
	res := &Result{
		Type:  typ,
		Email: extractAddress(eventData(event)),
	}
	res.Suppressed = res.Email != "" && shouldSuppress(typ)

	providerEvent := domain.NewEvent(res.Email, domain.ProviderEventType(typ), event)
	providerEvent.UID = eventUID(h.ID, providerEvent.Type)
	err := s.ledger.Run(ctx, func(tx ledger.Tx) error {
		if err := tx.AppendEvent(ctx, providerEvent); err != nil {
			return err
		}
		if !res.Suppressed {
			return nil
		}
		if err := tx.UpsertSuppressed(ctx, res.Email, string(domain.SourceWebhook)); err != nil {
			return err
		}
		suppressed := domain.NewEvent(res.Email, domain.EventSuppressed, map[string]any{
			"reason":   typ,
			"provider": providerName,
		})
		suppressed.UID = eventUID(h.ID, suppressed.Type)
		return tx.AppendEvent(ctx, suppressed)
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: record event: %w", err)
	}

	if res.Suppressed {
		if _, err := s.suppression.Add(ctx, res.Email, domain.SourceWebhook); err != nil {
			return nil, fmt.Errorf("webhook: suppress: %w", err)
		}
	}
	logger.Info("webhook: event ingested", "svix_id", h.ID, "type", typ, "email", res.Email, "suppressed", res.Suppressed)
	return res, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}
