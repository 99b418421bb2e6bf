package ledger

import "errors"

// Sentinel errors for the ledger layer.
var (
	ErrNotFound = errors.New("ledger: subscriber not found")
)
