package models

import "time"

// Announcement is an operator-published notice shown on the console.
type Announcement struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title     string `gorm:"type:text;not null"`    // Short headline.
	Body      string `gorm:"type:text;not null"`    // Markdown body.
	Published bool   `gorm:"not null;default:true"` // Whether visible to users.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
