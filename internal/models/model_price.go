package models

import "time"

// ModelPrice stores per-organization pricing overrides for a model.
//
// Either price side may be nil, in which case resolution falls through to the
// default prefix-matched price table.
type ModelPrice struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID   uint64 `gorm:"not null;index;uniqueIndex:uq_model_price_org_model,priority:1"`    // Organization scope.
	ModelID string `gorm:"type:text;not null;uniqueIndex:uq_model_price_org_model,priority:2"` // Model identifier.

	Enabled bool `gorm:"not null;default:true"` // Whether the model is usable.

	InputUSDMicrosPerM  *int64 // Input price in USD micros per million tokens.
	OutputUSDMicrosPerM *int64 // Output price in USD micros per million tokens.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
