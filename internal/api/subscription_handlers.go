package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/optin/internal/pkg/httputil"
	"github.com/ignite/optin/internal/service/subscription"
)

const maxJSONBody = 64 << 10

type subscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

// decodeLenient reads a small JSON body into dst. A missing or malformed
// body leaves dst zero so field validation produces the error.
func decodeLenient(r *http.Request, dst any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

// Subscribe handles POST /api/subscribe. Every accepted request gets the
// same message whatever branch the service took.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	decodeLenient(r, &req)

	res, err := h.subscriptions.Subscribe(r.Context(), req.Email, req.Source, clientFrom(r))
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid email")
	case err != nil:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	default:
		respondMessage(w, res.Message)
	}
}

// ConfirmLink handles GET /api/confirm?token=, the link mailed to the
// subscriber. With a redirect base configured the answer is a redirect to
// the front-end result page.
func (h *Handlers) ConfirmLink(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, r.URL.Query().Get("token"), h.redirectBase != "")
}

// Confirm handles POST /api/confirm with a {"token": "..."} body.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	decodeLenient(r, &body)
	if body.Token == "" {
		body.Token = r.URL.Query().Get("token")
	}
	h.confirm(w, r, body.Token, false)
}

func (h *Handlers) confirm(w http.ResponseWriter, r *http.Request, token string, redirect bool) {
	res, err := h.subscriptions.Confirm(r.Context(), token, clientFrom(r))
	var out apiResponse
	status := http.StatusOK
	switch {
	case errors.Is(err, subscription.ErrInvalidToken):
		out = apiResponse{OK: false, Error: subscription.ErrInvalidToken.Error()}
		status = http.StatusBadRequest
	case err != nil:
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	default:
		out = apiResponse{OK: true, Message: res.Message}
	}

	if !redirect {
		respondJSON(w, status, out)
		return
	}
	q := url.Values{}
	if out.OK {
		q.Set("ok", "1")
		q.Set("message", out.Message)
	} else {
		q.Set("ok", "0")
		q.Set("error", out.Error)
	}
	httputil.Redirect(w, r, h.redirectBase+"/confirm-result?"+q.Encode())
}

// Unsubscribe handles GET /api/unsubscribe?email= and answers with a small
// HTML page.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	res, err := h.subscriptions.Unsubscribe(r.Context(), r.URL.Query().Get("email"))
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid email, use /api/unsubscribe?email=you@example.com")
	case err != nil:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	default:
		httputil.HTML(w, http.StatusOK, "Unsubscribed", res.Email+" has been removed from the list.")
	}
}

// UnsubscribeOneClick handles the RFC 8058 one-click POST sent by mail
// clients to the List-Unsubscribe URL.
func (h *Handlers) UnsubscribeOneClick(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err == nil {
			email = r.PostForm.Get("email")
		}
	}
	_, err := h.subscriptions.Unsubscribe(r.Context(), email)
	switch {
	case errors.Is(err, subscription.ErrInvalidEmail):
		respondError(w, http.StatusBadRequest, "invalid email")
	case err != nil:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	default:
		respondMessage(w, subscription.MsgUnsubscribed)
	}
}
