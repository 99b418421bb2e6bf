package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/emailaddr"
	"github.com/ignite/optin/internal/pkg/httputil"
	"github.com/ignite/optin/internal/service/campaign"
	"github.com/ignite/optin/internal/service/imports"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/ignite/optin/internal/storage"
)

// requireAdmin rejects requests without the configured bearer token.
func requireAdmin(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SendBulk handles POST /api/send-bulk: one page of a campaign.
func (h *Handlers) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.campaigns.Send(r.Context(), req)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.Is(err, campaign.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, campaign.ErrListUnavailable):
		respondSafeError(w, http.StatusBadRequest, err, "failed to load list")
	default:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	}
}

const maxImportBytes = storage.MaxListBytes

// ImportEmails handles POST /api/import-emails with a multipart "file"
// field and an optional "key" field naming the destination.
func (h *Handlers) ImportEmails(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "send a file in the multipart field 'file'")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "send a file in the multipart field 'file'")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxImportBytes))
	if err != nil {
		respondSafeError(w, http.StatusBadRequest, err, "failed to read upload")
		return
	}
	res, err := h.imports.Import(r.Context(), raw, r.FormValue("key"))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.Is(err, imports.ErrEmptyUpload):
		respondError(w, http.StatusBadRequest, "upload is empty")
	default:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	}
}

// ListEvents handles GET /api/admin/events?email=&type=&limit=.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.EventFilter{
		Email: emailaddr.Normalize(q.Get("email")),
		Type:  domain.EventType(strings.TrimSpace(q.Get("type"))),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	events, err := h.ledger.Events(r.Context(), f)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(events), "events": events})
}

// SuppressionStatus handles GET /api/admin/suppression/{email}.
func (h *Handlers) SuppressionStatus(w http.ResponseWriter, r *http.Request) {
	email := emailaddr.Normalize(chi.URLParam(r, "email"))
	if !emailaddr.Valid(email) {
		respondError(w, http.StatusBadRequest, "invalid email")
		return
	}
	suppressed, err := h.suppression.Contains(r.Context(), email)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	}
	sub, err := h.ledger.Subscriber(r.Context(), email)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"email":      email,
		"suppressed": suppressed,
		"subscriber": sub,
	})
}
