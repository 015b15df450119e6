package models

import "time"

// Account roles.
const (
	// RoleUser is a regular console account.
	RoleUser = "user"
	// RoleAdmin grants access to the operator console.
	RoleAdmin = "admin"
)

// User represents an end user account with a prepaid balance.
//
// Balance is stored in whole USD cents; lifetime usage spend is accumulated
// separately in USD micros and netted against the balance at gate time.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email        string     `gorm:"type:text;not null;uniqueIndex"`     // Unique login email.
	PasswordHash string     `gorm:"type:text;not null"`                 // Bcrypt password hash.
	Role         string     `gorm:"type:text;not null;default:user"`    // Account role (user/admin).
	GroupName    string     `gorm:"type:text;not null;default:default"` // Channel routing group.
	BannedAt     *time.Time // Ban timestamp when blocked.

	BalanceUSDCents     int64 `gorm:"not null;default:0"` // Prepaid balance in USD cents.
	SpendUSDMicrosTotal int64 `gorm:"not null;default:0"` // Lifetime usage spend in USD micros.

	InviteCode      *string    `gorm:"type:text;uniqueIndex"` // Shareable invite code.
	InvitedByUserID *uint64    `gorm:"index"`                 // Inviting user, when referred.
	InvitedAt       *time.Time // Referral attachment time.

	SignupIP        *string `gorm:"type:text"` // IP observed at signup.
	SignupDeviceID  *string `gorm:"type:text"` // Device cookie observed at signup.
	SignupUserAgent *string `gorm:"type:text"` // User agent observed at signup.

	FirstPaymentEmail    *string `gorm:"type:text"` // Payer email of the first completed top-up.
	FirstPaymentIP       *string `gorm:"type:text"` // Client IP of the first completed top-up.
	FirstPaymentDeviceID *string `gorm:"type:text"` // Device cookie of the first completed top-up.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	LastLoginAt *time.Time // Last successful login time.
}
