package models

import (
	"time"

	"gorm.io/datatypes"
)

// Creem event processing statuses.
const (
	// CreemEventProcessed marks a webhook event handled successfully.
	CreemEventProcessed = "processed"
	// CreemEventFailed marks a webhook event rejected or not applied.
	CreemEventFailed = "failed"
)

// CreemEvent is the idempotency record for inbound payment-provider webhooks.
// Every delivery is checked against CreemEventID before any mutation and
// recorded afterwards, making at-least-once delivery safe to replay.
type CreemEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID  *uint64 `gorm:"index"` // Organization scope, when resolvable.
	UserID *uint64 `gorm:"index"` // Related user, when resolvable.

	CreemEventID string `gorm:"type:text;not null;uniqueIndex"`       // Provider-assigned event ID.
	EventType    string `gorm:"type:text;not null"`                   // Provider event type.
	Status       string `gorm:"type:text;not null;default:processed"` // processed or failed.

	AmountUnits      int64  `gorm:"not null;default:0"` // Credited whole-USD units, if any.
	AmountTotalCents *int64 // Total paid in cents, as reported.
	Currency         *string `gorm:"type:text"` // Settlement currency.

	RawPayload datatypes.JSON `gorm:"type:jsonb;not null"` // Full webhook payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
