package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrEmptyEmail = errors.New("suppression: email is required")
)
