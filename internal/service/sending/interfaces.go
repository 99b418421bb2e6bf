// Package sending defines the mail transmission contract the rest of the
// system depends on. Provider adapters live in internal/transport.
package sending

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/ignite/optin/internal/domain"
)

// Sender transmits one message. A returned error carries the provider's
// failure message, which the bulk engine classifies. Implementations must
// be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) error
}

// ErrOutcomeUnknown wraps a send that was abandoned before the provider
// answered. The message may still be delivered.
var ErrOutcomeUnknown = errors.New("delivery outcome unknown")

// UnsubscribeURL builds the one-click unsubscribe link for email.
func UnsubscribeURL(baseURL, email string) string {
	return strings.TrimRight(baseURL, "/") + "/api/unsubscribe?email=" + url.QueryEscape(email)
}

// UnsubscribeHeaders returns the List-Unsubscribe headers for email, or nil
// when no public base URL is configured.
func UnsubscribeHeaders(baseURL, email string) map[string]string {
	if baseURL == "" {
		return nil
	}
	return map[string]string{
		"List-Unsubscribe":      "<" + UnsubscribeURL(baseURL, email) + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}
