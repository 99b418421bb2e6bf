package api

import (
	"net/http"
	"strings"

	"github.com/ignite/optin/internal/pkg/httputil"
	"github.com/ignite/optin/internal/service/campaign"
	"github.com/ignite/optin/internal/service/imports"
	"github.com/ignite/optin/internal/service/ledger"
	"github.com/ignite/optin/internal/service/ratelimit"
	"github.com/ignite/optin/internal/service/subscription"
	"github.com/ignite/optin/internal/service/suppression"
	"github.com/ignite/optin/internal/service/webhook"
)

// Deps carries the services the handlers expose. Campaigns and Imports may
// be nil when admin routes are disabled.
type Deps struct {
	Subscriptions *subscription.Service
	Campaigns     *campaign.Service
	Webhooks      *webhook.Service
	Imports       *imports.Service
	Ledger        *ledger.Ledger
	Suppression   *suppression.Service
	Health        *HealthChecker
	// RedirectBaseURL switches GET /api/confirm to redirect mode.
	RedirectBaseURL string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	subscriptions *subscription.Service
	campaigns     *campaign.Service
	webhooks      *webhook.Service
	imports       *imports.Service
	ledger        *ledger.Ledger
	suppression   *suppression.Service
	health        *HealthChecker
	redirectBase  string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	if d.Health == nil {
		d.Health = NewHealthChecker(nil, nil, d.Suppression)
	}
	return &Handlers{
		subscriptions: d.Subscriptions,
		campaigns:     d.Campaigns,
		webhooks:      d.Webhooks,
		imports:       d.Imports,
		ledger:        d.Ledger,
		suppression:   d.Suppression,
		health:        d.Health,
		redirectBase:  strings.TrimRight(d.RedirectBaseURL, "/"),
	}
}

// apiResponse is the envelope of the public endpoints.
type apiResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, apiResponse{OK: false, Error: message})
}

func respondMessage(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, apiResponse{OK: true, Message: message})
}

// clientFrom derives the caller description: the first forwarded-for hop,
// else X-Real-IP.
func clientFrom(r *http.Request) subscription.Client {
	ip := ""
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := ratelimit.IdentityFromForwardedFor(xff); first != ratelimit.UnknownIdentity {
			ip = first
		}
	}
	if ip == "" {
		ip = strings.TrimSpace(r.Header.Get("X-Real-IP"))
	}
	identity := ip
	if identity == "" {
		identity = ratelimit.UnknownIdentity
	}
	return subscription.Client{Identity: identity, IP: ip, UserAgent: r.UserAgent()}
}

// Preflight answers CORS OPTIONS requests that reach the router.
func (h *Handlers) Preflight(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, apiResponse{OK: true})
}
