package subscription

import "errors"

// Sentinel errors for the subscription service layer.
var (
	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidToken = errors.New("invalid or expired token")
)
