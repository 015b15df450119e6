package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgergate/ledgergate/internal/db"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Referral bonus parameters: 25% of the top-up in cents, capped at $100,
// credited only after the cooling window with no refund in between.
const (
	ReferralCapUSDCents  = int64(10_000)
	ReferralPendingHours = 72
)

var referralRate = decimal.NewFromFloat(0.25)

// ComputeReferralBonusUSDCents converts top-up units (whole USD) into the
// inviter's bonus in cents, rounded half up and capped.
func ComputeReferralBonusUSDCents(units int64) int64 {
	if units < 0 {
		units = 0
	}
	bonusUSD := decimal.NewFromInt(units).Mul(referralRate).Round(2)
	cents := bonusUSD.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents < 0 {
		return 0
	}
	if cents > ReferralCapUSDCents {
		return ReferralCapUSDCents
	}
	return cents
}

func normalizeEmail(value *string) string {
	if value == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*value))
}

func normalizeToken(value *string) string {
	if value == nil {
		return ""
	}
	token := strings.TrimSpace(*value)
	if len(token) > 64 {
		token = token[:64]
	}
	return token
}

func tokenSet(values ...*string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if token := normalizeToken(value); token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}

func setsIntersect(a, b map[string]struct{}) bool {
	for token := range a {
		if _, ok := b[token]; ok {
			return true
		}
	}
	return false
}

// DetectReferralBlockReason applies the fraud checks in priority order and
// returns the first matching block reason, or empty when the bonus may stand.
func DetectReferralBlockReason(inviter, invitee *models.User, topup *models.BillingTopup) string {
	if inviter.ID == invitee.ID {
		return models.ReferralBlockSelfInvite
	}

	payerEmail := normalizeEmail(topup.PayerEmail)
	if payerEmail != "" {
		inviterEmail := strings.ToLower(strings.TrimSpace(inviter.Email))
		inviterPaymentEmail := normalizeEmail(inviter.FirstPaymentEmail)
		if (inviterEmail != "" && payerEmail == inviterEmail) ||
			(inviterPaymentEmail != "" && payerEmail == inviterPaymentEmail) {
			return models.ReferralBlockSamePaymentEmail
		}
	}

	inviteeDevices := tokenSet(invitee.SignupDeviceID, topup.ClientDeviceID)
	inviterDevices := tokenSet(inviter.SignupDeviceID, inviter.FirstPaymentDeviceID)
	if setsIntersect(inviteeDevices, inviterDevices) {
		return models.ReferralBlockSameDevice
	}

	inviteeIPs := tokenSet(invitee.SignupIP, topup.ClientIP)
	inviterIPs := tokenSet(inviter.SignupIP, inviter.FirstPaymentIP)
	if setsIntersect(inviteeIPs, inviterIPs) {
		return models.ReferralBlockSameIP
	}

	return ""
}

// MaybeCreateReferralBonusEvent stages a referral bonus for the invitee's
// completed top-up. It is a no-op when the invitee was not referred, when the
// invitee already has an active (pending or confirmed) event, or when the
// inviter is gone. Fraud signals stage the event pre-blocked so the attempt
// stays auditable.
func MaybeCreateReferralBonusEvent(ctx context.Context, conn *gorm.DB, orgID uint64, topup *models.BillingTopup) (*models.ReferralBonusEvent, error) {
	var event *models.ReferralBonusEvent
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitee models.User
		if errFind := tx.Where("id = ?", topup.UserID).First(&invitee).Error; errFind != nil {
			return errFind
		}
		if invitee.InvitedByUserID == nil {
			return nil
		}

		var activeCount int64
		errCount := tx.Model(&models.ReferralBonusEvent{}).
			Where("invitee_user_id = ? AND status IN ?", invitee.ID,
				[]string{models.ReferralStatusPending, models.ReferralStatusConfirmed}).
			Count(&activeCount).Error
		if errCount != nil {
			return errCount
		}
		if activeCount > 0 {
			return nil
		}

		var inviter models.User
		errInviter := tx.Where("id = ?", *invitee.InvitedByUserID).First(&inviter).Error
		if errInviter != nil {
			if errors.Is(errInviter, gorm.ErrRecordNotFound) {
				return nil
			}
			return errInviter
		}

		row := models.ReferralBonusEvent{
			OrgID:         orgID,
			InviterUserID: inviter.ID,
			InviteeUserID: invitee.ID,
			TopupID:       topup.ID,
			Status:        models.ReferralStatusPending,
			BonusUSDCents: ComputeReferralBonusUSDCents(topup.Units),
		}
		if reason := DetectReferralBlockReason(&inviter, &invitee, topup); reason != "" {
			row.Status = models.ReferralStatusBlocked
			row.BlockedReason = &reason
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			if isUniqueViolation(errCreate) {
				return nil
			}
			return fmt.Errorf("billing: create referral event: %w", errCreate)
		}
		event = &row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return event, nil
}

// ConfirmDueReferralBonuses credits pending bonuses older than the cooling
// window. Rows are claimed with FOR UPDATE SKIP LOCKED so concurrent workers
// never double-credit. Returns the number of bonuses confirmed.
func ConfirmDueReferralBonuses(ctx context.Context, conn *gorm.DB, now time.Time, limit int) (int, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	cutoff := now.Add(-ReferralPendingHours * time.Hour)

	confirmed := 0
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []models.ReferralBonusEvent
		errFind := db.WithRowLockSkipLocked(tx).
			Where("status = ? AND created_at <= ?", models.ReferralStatusPending, cutoff).
			Limit(limit).
			Find(&events).Error
		if errFind != nil {
			return errFind
		}

		for i := range events {
			event := &events[i]

			var topup models.BillingTopup
			errTopup := tx.Where("id = ?", event.TopupID).First(&topup).Error
			missingTopup := errors.Is(errTopup, gorm.ErrRecordNotFound)
			if errTopup != nil && !missingTopup {
				return errTopup
			}
			if missingTopup || topup.RefundedAt != nil {
				blockEvent(event, models.ReferralBlockRefunded, now)
				if errSave := tx.Save(event).Error; errSave != nil {
					return errSave
				}
				continue
			}

			var inviter models.User
			errInviter := db.WithRowLock(tx).Where("id = ?", event.InviterUserID).First(&inviter).Error
			if errors.Is(errInviter, gorm.ErrRecordNotFound) {
				blockEvent(event, models.ReferralBlockMissingInviter, now)
				if errSave := tx.Save(event).Error; errSave != nil {
					return errSave
				}
				continue
			}
			if errInviter != nil {
				return errInviter
			}

			balanceBefore := inviter.BalanceUSDCents
			bonus := event.BonusUSDCents
			if bonus < 0 {
				bonus = 0
			}
			balanceAfter := balanceBefore + bonus
			if errValidate := ValidateBalanceUSDCents(balanceAfter); errValidate != nil {
				return errValidate
			}
			inviter.BalanceUSDCents = balanceAfter
			if errSave := tx.Save(&inviter).Error; errSave != nil {
				return errSave
			}
			if errStage := StageLedgerEntry(tx, event.OrgID, inviter.ID, nil, balanceBefore, balanceAfter, models.LedgerEntryReferralBonus); errStage != nil {
				return errStage
			}

			event.Status = models.ReferralStatusConfirmed
			confirmedAt := now
			event.ConfirmedAt = &confirmedAt
			if errSave := tx.Save(event).Error; errSave != nil {
				return errSave
			}
			confirmed++
		}
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return confirmed, nil
}

func blockEvent(event *models.ReferralBonusEvent, reason string, now time.Time) {
	event.Status = models.ReferralStatusBlocked
	if event.BlockedReason == nil {
		event.BlockedReason = &reason
	}
	reversedAt := now
	event.ReversedAt = &reversedAt
}

// ProcessReferralRefund handles a refunded top-up's referral side effects:
// a pending bonus is blocked before it ever credits, a confirmed bonus is
// debited back and marked reversed, anything else is left alone. The debit is
// clamped at zero when the inviter already spent the bonus; that shortfall is
// logged for reconciliation.
func ProcessReferralRefund(ctx context.Context, conn *gorm.DB, topup *models.BillingTopup, now time.Time) error {
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if topup.RefundedAt == nil {
			refundedAt := now
			topup.RefundedAt = &refundedAt
			if errSave := tx.Save(topup).Error; errSave != nil {
				return fmt.Errorf("billing: mark topup refunded: %w", errSave)
			}
		}

		var event models.ReferralBonusEvent
		errFind := db.WithRowLock(tx).Where("topup_id = ?", topup.ID).First(&event).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil
			}
			return errFind
		}

		switch event.Status {
		case models.ReferralStatusPending:
			blockEvent(&event, models.ReferralBlockRefunded, now)
			return tx.Save(&event).Error
		case models.ReferralStatusConfirmed:
		default:
			return nil
		}

		var inviter models.User
		errInviter := db.WithRowLock(tx).Where("id = ?", event.InviterUserID).First(&inviter).Error
		if errors.Is(errInviter, gorm.ErrRecordNotFound) {
			reversedAt := now
			event.Status = models.ReferralStatusReversed
			event.ReversedAt = &reversedAt
			return tx.Save(&event).Error
		}
		if errInviter != nil {
			return errInviter
		}

		balanceBefore := inviter.BalanceUSDCents
		debit := event.BonusUSDCents
		if debit < 0 {
			debit = 0
		}
		balanceAfter := balanceBefore - debit
		if balanceAfter < 0 {
			log.WithFields(log.Fields{
				"user_id":       inviter.ID,
				"topup_id":      topup.ID,
				"bonus_cents":   debit,
				"balance_cents": balanceBefore,
			}).Warn("referral: reversal exceeds balance, clamping to zero")
			balanceAfter = 0
		}
		inviter.BalanceUSDCents = balanceAfter
		if errSave := tx.Save(&inviter).Error; errSave != nil {
			return errSave
		}
		if errStage := StageLedgerEntry(tx, event.OrgID, inviter.ID, nil, balanceBefore, balanceAfter, models.LedgerEntryReferralBonus); errStage != nil {
			return errStage
		}

		reversedAt := now
		event.Status = models.ReferralStatusReversed
		event.ReversedAt = &reversedAt
		return tx.Save(&event).Error
	})
}
