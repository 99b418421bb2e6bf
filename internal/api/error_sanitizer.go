package api

import (
	"net/http"
	"strings"

	"github.com/ignite/optin/internal/pkg/logger"
)

// =============================================================================
// ERROR SANITIZER
// Internal errors (database details, bucket names, provider responses) are
// never returned to callers. 5xx responses carry a generic message while the
// full error is logged server-side.
// =============================================================================

// sanitizedError logs the full internal error and returns a public-safe message.
func sanitizedError(code int, internalErr error, publicMsg string) string {
	if publicMsg == "" {
		publicMsg = safeErrorMessage(code, internalErr)
	}
	if internalErr != nil {
		logger.Error("api: request failed", "status", code, "public", publicMsg, "error", internalErr)
	}
	return publicMsg
}

// respondSafeError logs the internal error and sends a sanitized JSON error
// response to the client.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	respondError(w, code, sanitizedError(code, internalErr, publicMsg))
}

// safeErrorMessage maps common internal error patterns to public-safe messages.
// For 400-level errors, the original message is typically fine (user input issues).
// For 500-level errors, this returns a generic safe message.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "bad request"
	}

	if internalErr == nil {
		return "an internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "a database error occurred"

	case strings.Contains(errStr, "nosuchbucket") ||
		strings.Contains(errStr, "s3") ||
		strings.Contains(errStr, "storage"):
		return "a storage error occurred"

	default:
		return "an internal error occurred"
	}
}
