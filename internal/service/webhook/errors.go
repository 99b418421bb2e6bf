package webhook

import "errors"

// Sentinel errors for the webhook service layer.
var (
	ErrNotConfigured    = errors.New("webhook secret not configured")
	ErrMissingHeaders   = errors.New("missing webhook headers")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedPayload = errors.New("malformed payload")
)
