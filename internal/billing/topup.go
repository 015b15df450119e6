package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledgergate/ledgergate/internal/db"
	"github.com/ledgergate/ledgergate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Top-up units are whole US dollars; crediting a completed top-up adds
// units*100 cents to the balance.
const CentsPerUnit = int64(100)

// ErrTopupNotFound indicates no top-up matched the given request id.
var ErrTopupNotFound = errors.New("billing: topup not found")

// GenerateTopupRequestID returns a fresh opaque top-up request identifier.
func GenerateTopupRequestID() string {
	return "topup_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateTopup inserts a pending top-up for a checkout about to be created.
func CreateTopup(ctx context.Context, conn *gorm.DB, orgID, userID uint64, requestID string, units int64, clientIP, clientDeviceID string) (*models.BillingTopup, error) {
	if units < 0 {
		units = 0
	}
	row := models.BillingTopup{
		OrgID:          orgID,
		UserID:         userID,
		RequestID:      requestID,
		Units:          units,
		Status:         models.TopupStatusPending,
		ClientIP:       optString(clientIP, 64),
		ClientDeviceID: optString(clientDeviceID, 64),
	}
	if errCreate := conn.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("billing: create topup: %w", errCreate)
	}
	return &row, nil
}

// GetTopupForUser fetches one top-up scoped to its owner, for status polling.
func GetTopupForUser(ctx context.Context, conn *gorm.DB, orgID, userID uint64, requestID string) (*models.BillingTopup, error) {
	var row models.BillingTopup
	errFind := conn.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND request_id = ?", orgID, userID, requestID).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrTopupNotFound
		}
		return nil, errFind
	}
	return &row, nil
}

// FindTopup locates a top-up by request id, then order id, then checkout id.
// Webhook refund events do not always carry the request id.
func FindTopup(ctx context.Context, conn *gorm.DB, requestID, orderID, checkoutID string) (*models.BillingTopup, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{"request_id", strings.TrimSpace(requestID)},
		{"order_id", strings.TrimSpace(orderID)},
		{"checkout_id", strings.TrimSpace(checkoutID)},
	}
	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		var row models.BillingTopup
		errFind := conn.WithContext(ctx).Where(lookup.column+" = ?", lookup.value).First(&row).Error
		if errFind == nil {
			return &row, nil
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errFind
		}
	}
	return nil, ErrTopupNotFound
}

// ProviderFields carries the payment-provider attributes reported alongside a
// webhook event.
type ProviderFields struct {
	CheckoutID       string
	OrderID          string
	Currency         string
	AmountTotalCents *int64
	PayerEmail       string
}

func applyProviderFields(topup *models.BillingTopup, fields ProviderFields) {
	if fields.CheckoutID != "" {
		topup.CheckoutID = optString(fields.CheckoutID, 128)
	}
	if fields.OrderID != "" {
		topup.OrderID = optString(fields.OrderID, 128)
	}
	if fields.Currency != "" {
		topup.Currency = optString(fields.Currency, 8)
	}
	if fields.AmountTotalCents != nil {
		cents := *fields.AmountTotalCents
		if cents < 0 {
			cents = 0
		}
		topup.AmountTotalCents = &cents
	}
	if fields.PayerEmail != "" {
		topup.PayerEmail = optString(fields.PayerEmail, 254)
	}
}

// MarkTopupFailed transitions a top-up to failed. Completed is terminal, so a
// completed row is returned unchanged.
func MarkTopupFailed(ctx context.Context, conn *gorm.DB, requestID string, fields ProviderFields) (*models.BillingTopup, error) {
	var topup models.BillingTopup
	errFind := conn.WithContext(ctx).Where("request_id = ?", requestID).First(&topup).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrTopupNotFound
		}
		return nil, errFind
	}
	if topup.Status == models.TopupStatusCompleted {
		return &topup, nil
	}
	topup.Status = models.TopupStatusFailed
	applyProviderFields(&topup, fields)
	if errSave := conn.WithContext(ctx).Save(&topup).Error; errSave != nil {
		return nil, fmt.Errorf("billing: mark topup failed: %w", errSave)
	}
	return &topup, nil
}

// CompleteTopup credits a paid top-up exactly once. It locks the top-up row
// and then the user row (always in that order), re-checks the status under
// the lock, credits units*100 cents, stages the ledger entry, marks the
// top-up completed, and records the payer's first-payment attributes on the
// user if not already set. Redelivered webhooks hit the status check and
// return the completed row unchanged.
//
// On success it kicks off referral-bonus evaluation; referral failures are
// logged, never propagated.
func CompleteTopup(ctx context.Context, conn *gorm.DB, requestID string, fields ProviderFields) (*models.BillingTopup, error) {
	var topup models.BillingTopup
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := db.WithRowLock(tx).Where("request_id = ?", requestID).First(&topup).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrTopupNotFound
			}
			return errFind
		}
		if topup.Status == models.TopupStatusCompleted {
			return nil
		}

		var user models.User
		errUser := db.WithRowLock(tx).Where("id = ?", topup.UserID).First(&user).Error
		if errUser != nil {
			if errors.Is(errUser, gorm.ErrRecordNotFound) {
				return fmt.Errorf("billing: topup %s: user %d missing", requestID, topup.UserID)
			}
			return errUser
		}

		balanceBefore := user.BalanceUSDCents
		units := topup.Units
		if units < 0 {
			units = 0
		}
		balanceAfter := balanceBefore + units*CentsPerUnit
		if errValidate := ValidateBalanceUSDCents(balanceAfter); errValidate != nil {
			return errValidate
		}

		user.BalanceUSDCents = balanceAfter
		if user.FirstPaymentEmail == nil && fields.PayerEmail != "" {
			user.FirstPaymentEmail = optString(fields.PayerEmail, 254)
			user.FirstPaymentIP = topup.ClientIP
			user.FirstPaymentDeviceID = topup.ClientDeviceID
		}
		if errSave := tx.Save(&user).Error; errSave != nil {
			return fmt.Errorf("billing: credit topup: %w", errSave)
		}
		if errStage := StageLedgerEntry(tx, topup.OrgID, user.ID, nil, balanceBefore, balanceAfter, models.LedgerEntryTopUp); errStage != nil {
			return errStage
		}

		now := tx.NowFunc()
		topup.Status = models.TopupStatusCompleted
		topup.CompletedAt = &now
		applyProviderFields(&topup, fields)
		if errSave := tx.Save(&topup).Error; errSave != nil {
			return fmt.Errorf("billing: complete topup: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	if _, errReferral := MaybeCreateReferralBonusEvent(ctx, conn, topup.OrgID, &topup); errReferral != nil {
		log.WithError(errReferral).Warn("referral: bonus evaluation failed")
	}
	return &topup, nil
}

// CreemEventExists reports whether a provider event id was already recorded.
func CreemEventExists(ctx context.Context, conn *gorm.DB, creemEventID string) (bool, error) {
	var count int64
	errCount := conn.WithContext(ctx).Model(&models.CreemEvent{}).
		Where("creem_event_id = ?", creemEventID).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// RecordCreemEvent persists one webhook event for idempotency. A concurrent
// duplicate insert loses the unique-index race and reports created=false.
func RecordCreemEvent(ctx context.Context, conn *gorm.DB, event *models.CreemEvent, rawPayload []byte) (bool, error) {
	event.CreemEventID = truncateField(event.CreemEventID, 64)
	event.EventType = truncateField(event.EventType, 64)
	event.RawPayload = datatypes.JSON(rawPayload)
	errCreate := conn.WithContext(ctx).Create(event).Error
	if errCreate != nil {
		if isUniqueViolation(errCreate) {
			return false, nil
		}
		return false, fmt.Errorf("billing: record creem event: %w", errCreate)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func truncateField(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) > limit {
		return value[:limit]
	}
	return value
}

// optString converts an optional request value into a nullable column value.
func optString(value string, limit int) *string {
	value = truncateField(value, limit)
	if value == "" {
		return nil
	}
	return &value
}
