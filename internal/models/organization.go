package models

import "time"

// Organization scopes billing data. A single default organization is created
// on first use; memberships attach users to it.
type Organization struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name                string `gorm:"type:text;not null"`     // Display name.
	IsDefault           bool   `gorm:"not null;default:false"` // Marks the default organization.
	BillingTopupEnabled bool   `gorm:"not null;default:true"`  // Whether top-up checkout is allowed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Membership binds a user to an organization with a role.
type Membership struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID  uint64 `gorm:"not null;index;uniqueIndex:uq_membership_org_user,priority:1"` // Organization scope.
	UserID uint64 `gorm:"not null;index;uniqueIndex:uq_membership_org_user,priority:2"` // Member user ID.
	Role   string `gorm:"type:text;not null;default:developer"`                         // Membership role.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
