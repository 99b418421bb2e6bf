package subscription

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 256 bits of entropy, 64 hex characters once encoded.
const tokenBytes = 32

// DefaultMinTokenLength rejects anything shorter than 128 bits of hex
// before storage is touched.
const DefaultMinTokenLength = 32

// NewToken returns a random hex token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the one-way digest stored in the ledger.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
