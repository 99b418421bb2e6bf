package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ignite/optin/internal/service/webhook"
)

const maxWebhookBody = 1 << 20

// ResendWebhook handles POST /api/webhooks/resend. The raw body is passed
// through untouched because the signature covers its exact bytes.
func (h *Handlers) ResendWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	hdr := webhook.Headers{
		ID:        r.Header.Get("svix-id"),
		Timestamp: r.Header.Get("svix-timestamp"),
		Signature: r.Header.Get("svix-signature"),
	}

	_, err = h.webhooks.Ingest(r.Context(), hdr, body)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, apiResponse{OK: true})
	case errors.Is(err, webhook.ErrMissingHeaders):
		respondError(w, http.StatusBadRequest, "missing webhook headers")
	case errors.Is(err, webhook.ErrInvalidSignature):
		respondError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, webhook.ErrMalformedPayload):
		respondError(w, http.StatusBadRequest, "malformed payload")
	default:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	}
}
