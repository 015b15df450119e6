package models

import "time"

// APIKey represents an API key issued to a user.
//
// Only the SHA-256 hash is used for authentication; the plaintext is retained
// solely for a one-time reveal after creation. Cumulative spend is updated
// transactionally alongside every usage event insert.
type APIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Associated user record.

	Name         string  `gorm:"type:text;not null"`             // Display name for the key.
	KeyHash      string  `gorm:"type:text;not null;uniqueIndex"` // SHA-256 hex of the full key.
	Prefix       string  `gorm:"type:text;not null"`             // Display prefix.
	KeyPlaintext *string `gorm:"type:text"`                      // Full key, kept for one-time reveal.

	SpendUSDMicrosTotal int64  `gorm:"not null;default:0"` // Running spend in USD micros.
	SpendLimitUSDMicros *int64 // Optional spend cap in USD micros.

	CreatedAt  time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	LastUsedAt *time.Time // Last successful usage time.
	RevokedAt  *time.Time // Revocation timestamp when disabled.
}

// Status returns the current key status.
func (k *APIKey) Status() string {
	if k.RevokedAt != nil {
		return "revoked"
	}
	return "active"
}
