package models

import "time"

// Referral bonus statuses.
const (
	// ReferralStatusPending marks a staged bonus inside the cooling window.
	ReferralStatusPending = "pending"
	// ReferralStatusConfirmed marks a credited bonus; reversible on refund.
	ReferralStatusConfirmed = "confirmed"
	// ReferralStatusBlocked marks a bonus that never credited; terminal.
	ReferralStatusBlocked = "blocked"
	// ReferralStatusReversed marks a confirmed bonus debited back; terminal.
	ReferralStatusReversed = "reversed"
)

// Referral block reasons.
const (
	ReferralBlockSelfInvite       = "self_invite"
	ReferralBlockSamePaymentEmail = "same_payment_email"
	ReferralBlockSameDevice       = "same_device"
	ReferralBlockSameIP           = "same_ip"
	ReferralBlockRefunded         = "refunded"
	ReferralBlockMissingInviter   = "missing_inviter"
)

// ReferralBonusEvent stages a conditionally-delayed credit to an inviting
// user, triggered by an invitee's qualifying top-up. At most one event per
// invitee may be pending or confirmed at a time.
type ReferralBonusEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrgID         uint64 `gorm:"not null;index"`       // Organization scope.
	InviterUserID uint64 `gorm:"not null;index"`       // User receiving the bonus.
	InviteeUserID uint64 `gorm:"not null;index"`       // User whose top-up triggered it.
	TopupID       uint64 `gorm:"not null;uniqueIndex"` // Originating top-up; one event per top-up.

	Status        string  `gorm:"type:text;not null;default:pending"` // pending, confirmed, blocked or reversed.
	BonusUSDCents int64   `gorm:"not null;default:0"`                 // Bonus amount in USD cents.
	BlockedReason *string `gorm:"type:text"`                          // Fraud signal or refund reason when blocked.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	ConfirmedAt *time.Time // Confirmation time when credited.
	ReversedAt  *time.Time // Reversal/block time.
}
