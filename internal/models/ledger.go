package models

import "time"

// Ledger entry types.
const (
	// LedgerEntryAdjustment is a manual balance adjustment by an operator.
	LedgerEntryAdjustment = "adjustment"
	// LedgerEntryTopUp is a completed payment-provider top-up credit.
	LedgerEntryTopUp = "top_up"
	// LedgerEntryReferralBonus is a confirmed or reversed referral bonus.
	LedgerEntryReferralBonus = "referral_bonus"
)

// BalanceLedgerEntry is one immutable balance mutation record.
//
// Replaying all entries for a user in creation order and summing deltas must
// equal the stored balance; BalanceUSDMicros carries the post-entry running
// balance. Rows are append-only and never updated.
type BalanceLedgerEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID       uint64  `gorm:"not null;index"` // Organization scope.
	UserID      uint64  `gorm:"not null;index"` // Affected user.
	ActorUserID *uint64 `gorm:"index"`          // Operator who caused the change, when applicable.

	EntryType        string `gorm:"type:text;not null;default:adjustment"` // adjustment, top_up or referral_bonus.
	DeltaUSDMicros   int64  `gorm:"not null;default:0"`                    // Signed balance delta in USD micros.
	BalanceUSDMicros int64  `gorm:"not null;default:0"`                    // Post-entry running balance in USD micros.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
