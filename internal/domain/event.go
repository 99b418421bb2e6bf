package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the audit records written to the event log.
type EventType string

const (
	EventSubscribe        EventType = "subscribe"
	EventSubscribeBlocked EventType = "subscribe_blocked"
	EventConfirm          EventType = "confirm"
	EventConfirmRepeat    EventType = "confirm_repeat"
	EventConfirmBlocked   EventType = "confirm_blocked"
	EventConfirmInvalid   EventType = "confirm_invalid"
	EventRateLimited      EventType = "rate_limited"
	EventSuppressed       EventType = "suppressed"
)

// ProviderEventPrefix qualifies inbound webhook event types.
const ProviderEventPrefix = "resend_"

// ProviderEventType returns the provider-qualified type for an inbound
// webhook event, e.g. "email.bounced" becomes "resend_email.bounced".
func ProviderEventType(providerType string) EventType {
	return EventType(ProviderEventPrefix + strings.ToLower(strings.TrimSpace(providerType)))
}

// Event is an immutable audit record. Email may be empty when the identity
// behind the event could not be resolved (e.g. an unknown token).
//
// UID is assigned when the event is built and travels with it to every audit
// sink, so downstream consumers can de-duplicate redeliveries.
type Event struct {
	ID        int64          `json:"id" db:"id"`
	UID       string         `json:"uid" db:"uid"`
	Email     string         `json:"email" db:"email"`
	Type      EventType      `json:"event_type" db:"event_type"`
	Payload   map[string]any `json:"payload" db:"payload"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// NewEvent builds an event stamped with the current UTC time.
func NewEvent(email string, t EventType, payload map[string]any) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		UID:       uuid.NewString(),
		Email:     email,
		Type:      t,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
