// Package orgs manages the default organization and user memberships.
package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

const defaultOrgName = "Default"

// EnsureDefaultOrg returns the default organization, creating it on first
// use.
func EnsureDefaultOrg(ctx context.Context, conn *gorm.DB) (*models.Organization, error) {
	var org models.Organization
	errFind := conn.WithContext(ctx).Where("is_default = ?", true).First(&org).Error
	if errFind == nil {
		return &org, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	org = models.Organization{
		Name:                defaultOrgName,
		IsDefault:           true,
		BillingTopupEnabled: true,
	}
	if errCreate := conn.WithContext(ctx).Create(&org).Error; errCreate != nil {
		// Lost a concurrent creation race; re-read.
		var existing models.Organization
		if errRetry := conn.WithContext(ctx).Where("is_default = ?", true).First(&existing).Error; errRetry == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("orgs: create default org: %w", errCreate)
	}
	return &org, nil
}

// RequireMembership attaches the user to the default organization if not
// already a member and returns the membership.
func RequireMembership(ctx context.Context, conn *gorm.DB, userID uint64) (*models.Membership, error) {
	org, errOrg := EnsureDefaultOrg(ctx, conn)
	if errOrg != nil {
		return nil, errOrg
	}

	var membership models.Membership
	errFind := conn.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", org.ID, userID).
		First(&membership).Error
	if errFind == nil {
		return &membership, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	membership = models.Membership{OrgID: org.ID, UserID: userID, Role: "developer"}
	if errCreate := conn.WithContext(ctx).Create(&membership).Error; errCreate != nil {
		var existing models.Membership
		if errRetry := conn.WithContext(ctx).
			Where("org_id = ? AND user_id = ?", org.ID, userID).
			First(&existing).Error; errRetry == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("orgs: create membership: %w", errCreate)
	}
	return &membership, nil
}
