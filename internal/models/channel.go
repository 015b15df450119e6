package models

import "time"

// Channel is an upstream OpenAI-compatible endpoint usable for proxying.
type Channel struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID uint64 `gorm:"not null;index"` // Organization scope.

	Name      string `gorm:"type:text;not null"`                 // Display name.
	BaseURL   string `gorm:"type:text;not null"`                 // Upstream base URL.
	APIKey    string `gorm:"type:text;not null"`                 // Upstream secret.
	GroupName string `gorm:"type:text;not null;default:default"` // User group served by this channel.
	Enabled   bool   `gorm:"not null;default:true"`              // Whether the channel is selectable.
	Priority  int    `gorm:"not null;default:0"`                 // Selection priority, higher first.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
