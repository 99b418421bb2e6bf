package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrInvalidRequest         = errors.New("invalid bulk request")
	ErrListUnavailable        = errors.New("target list unavailable")
	ErrSuppressionUnavailable = errors.New("suppression set unavailable")
)
