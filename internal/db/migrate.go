package db

import (
	"fmt"

	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the application uses.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.Organization{},
		&models.Membership{},
		&models.User{},
		&models.APIKey{},
		&models.Channel{},
		&models.ModelPrice{},
		&models.BalanceLedgerEntry{},
		&models.UsageEvent{},
		&models.BillingTopup{},
		&models.ReferralBonusEvent{},
		&models.CreemEvent{},
		&models.InviteVisit{},
		&models.Announcement{},
	)
}
