package domain

import (
	"strings"
	"time"
)

// SubscriberStatus enumerates the lifecycle states of a subscriber.
type SubscriberStatus string

const (
	SubscriberPending    SubscriberStatus = "pending"
	SubscriberConfirmed  SubscriberStatus = "confirmed"
	SubscriberSuppressed SubscriberStatus = "suppressed"
)

// MaxSourceLength caps the free-text provenance tag stored with a subscriber.
const MaxSourceLength = 64

// Subscriber is the ledger row for one normalized address.
//
// TokenHash is the SHA-256 hex digest of the currently valid confirmation
// token (nil once confirmed). ConsumedTokenHash keeps the digest of the token
// that performed the confirmation so a repeated click can be recognized.
type Subscriber struct {
	Email             string           `json:"email" db:"email"`
	Status            SubscriberStatus `json:"status" db:"status"`
	TokenHash         *string          `json:"-" db:"token_hash"`
	ConsumedTokenHash *string          `json:"-" db:"consumed_token_hash"`
	Source            string           `json:"source" db:"source"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
	ConfirmedAt       *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	ConfirmIP         string           `json:"confirm_ip,omitempty" db:"confirm_ip"`
	ConfirmUA         string           `json:"confirm_ua,omitempty" db:"confirm_ua"`
}

// IsSuppressed reports whether the subscriber sits in the absorbing state.
func (s *Subscriber) IsSuppressed() bool {
	return s.Status == SubscriberSuppressed
}

// NormalizeEmail lower-cases and trims an address. It is the key used by the
// ledger, the suppression store and the event log.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ClampSource trims a provenance tag and caps it at MaxSourceLength runes.
func ClampSource(source string) string {
	source = strings.TrimSpace(source)
	r := []rune(source)
	if len(r) > MaxSourceLength {
		return string(r[:MaxSourceLength])
	}
	return source
}
