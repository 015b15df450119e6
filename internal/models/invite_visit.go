package models

import "time"

// InviteVisit logs one landing-page visit through an invite link. Recording
// is best-effort and never blocks the visiting request.
type InviteVisit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InviteCode    string  `gorm:"type:text;not null;index"` // Visited invite code.
	InviterUserID *uint64 `gorm:"index"`                    // Owner of the code, when resolved.

	VisitorIP       *string `gorm:"type:text"` // Visitor IP.
	VisitorDeviceID *string `gorm:"type:text"` // Visitor device cookie.
	UserAgent       *string `gorm:"type:text"` // Visitor user agent.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
