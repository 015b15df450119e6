package models

import "time"

// Top-up statuses.
const (
	// TopupStatusPending marks a top-up awaiting payment confirmation.
	TopupStatusPending = "pending"
	// TopupStatusCompleted marks a credited top-up; terminal.
	TopupStatusCompleted = "completed"
	// TopupStatusFailed marks a top-up with no balance effect; terminal.
	TopupStatusFailed = "failed"
)

// BillingTopup is one user-initiated balance purchase through the payment
// provider. RequestID is the idempotency key round-tripped through provider
// metadata; a row transitions to completed exactly once.
type BillingTopup struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID  uint64 `gorm:"not null;index"` // Organization scope.
	UserID uint64 `gorm:"not null;index"` // Paying user.

	RequestID string `gorm:"type:text;not null;uniqueIndex"`     // Client-generated idempotency key.
	Units     int64  `gorm:"not null;default:0"`                 // Requested amount in whole USD.
	Status    string `gorm:"type:text;not null;default:pending"` // pending, completed or failed.

	CheckoutID       *string `gorm:"type:text;index"` // Provider checkout session ID.
	OrderID          *string `gorm:"type:text;index"` // Provider order ID.
	Currency         *string `gorm:"type:text"`       // Settlement currency reported by the provider.
	AmountTotalCents *int64  // Total paid in cents, as reported.
	PayerEmail       *string `gorm:"type:text"` // Payer email reported by the provider.

	ClientIP       *string `gorm:"type:text"` // Client IP at checkout creation.
	ClientDeviceID *string `gorm:"type:text"` // Device cookie at checkout creation.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	CompletedAt *time.Time // Completion time when credited.
	RefundedAt  *time.Time // Refund time when charged back.
}
