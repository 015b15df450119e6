package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// Balance is stored in whole USD cents; spend and ledger deltas are stored in
// USD micros. One cent is 10,000 micros.
const MicrosPerCent = int64(10_000)

// MaxBalanceUSDCents is the overflow guard on any balance mutation ($1M).
const MaxBalanceUSDCents = int64(100_000_000)

var (
	// ErrNegativeBalance indicates a mutation that would drive the balance
	// below zero.
	ErrNegativeBalance = errors.New("billing: balance would go negative")
	// ErrBalanceTooLarge indicates a mutation above MaxBalanceUSDCents.
	ErrBalanceTooLarge = errors.New("billing: balance exceeds maximum")
)

// ValidateBalanceUSDCents rejects out-of-range balances before any write.
func ValidateBalanceUSDCents(balanceCents int64) error {
	if balanceCents < 0 {
		return ErrNegativeBalance
	}
	if balanceCents > MaxBalanceUSDCents {
		return ErrBalanceTooLarge
	}
	return nil
}

// StageLedgerEntry appends one ledger row recording the balance movement from
// beforeCents to afterCents. It must run inside the same transaction that
// updates users.balance_usd_cents. Equal before/after is a no-op so the ledger
// never carries zero-delta rows.
func StageLedgerEntry(tx *gorm.DB, orgID, userID uint64, actorUserID *uint64, beforeCents, afterCents int64, entryType string) error {
	if beforeCents == afterCents {
		return nil
	}
	if err := ValidateBalanceUSDCents(afterCents); err != nil {
		return err
	}
	entry := models.BalanceLedgerEntry{
		OrgID:            orgID,
		UserID:           userID,
		ActorUserID:      actorUserID,
		EntryType:        entryType,
		DeltaUSDMicros:   (afterCents - beforeCents) * MicrosPerCent,
		BalanceUSDMicros: afterCents * MicrosPerCent,
	}
	if errCreate := tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("billing: stage ledger entry: %w", errCreate)
	}
	return nil
}

// RemainingUSDMicros is the credit-gate figure: prepaid balance minus lifetime
// spend, floored at zero.
func RemainingUSDMicros(balanceCents, spendMicros int64) int64 {
	remaining := balanceCents*MicrosPerCent - spendMicros
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ListLedger returns a user's ledger entries newest first.
func ListLedger(ctx context.Context, conn *gorm.DB, userID uint64, limit, offset int) ([]models.BalanceLedgerEntry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := conn.WithContext(ctx).Model(&models.BalanceLedgerEntry{}).Where("user_id = ?", userID)
	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}
	var entries []models.BalanceLedgerEntry
	errFind := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if errFind != nil {
		return nil, 0, errFind
	}
	return entries, total, nil
}
