package domain

import "time"

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceUnsubscribe SuppressionSource = "unsubscribe"
	SourceWebhook     SuppressionSource = "resend"
	SourceBulkBounce  SuppressionSource = "bulk_bounce"
	SourceManual      SuppressionSource = "manual"
)

// Suppression is a single member of the suppression set. The set carries no
// payload beyond membership; Source and CreatedAt are only populated by
// backends that keep one row per address.
type Suppression struct {
	Email     string            `json:"email" db:"email"`
	Source    SuppressionSource `json:"source,omitempty" db:"source"`
	CreatedAt time.Time         `json:"created_at,omitempty" db:"created_at"`
}
