package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageEvent records metering data for a single proxied LLM call.
//
// Rows are immutable after insert; per-key and per-user spend counters are
// incremented in the same transaction that creates the row.
type UsageEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID    uint64  `gorm:"not null;index"` // Organization scope.
	UserID   uint64  `gorm:"not null;index"` // Calling user.
	APIKeyID *uint64 `gorm:"index"`          // Related API key, when key-authenticated.

	ModelID    string `gorm:"type:text;not null;index"` // Requested model identifier.
	OK         bool   `gorm:"not null;default:true"`    // Whether the upstream call succeeded.
	StatusCode int    `gorm:"not null;default:200"`     // Upstream HTTP status.

	InputTokens  int64 `gorm:"not null;default:0"` // Input token count.
	CachedTokens int64 `gorm:"not null;default:0"` // Cached input token count.
	OutputTokens int64 `gorm:"not null;default:0"` // Output token count.
	TotalTokens  int64 `gorm:"not null;default:0"` // Total token count.

	CostUSDMicros int64 `gorm:"not null;default:0"` // Cost in USD micros, computed at call time.

	TotalDurationMS int64 `gorm:"not null;default:0"` // Wall time of the proxied call.
	TTFTMS          int64 `gorm:"not null;default:0"` // Time to first upstream byte.

	SourceIP    *string        `gorm:"type:text"`  // Client IP, when known.
	ErrorDetail datatypes.JSON `gorm:"type:jsonb"` // Structured error detail for failed calls.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
