// Package access authenticates proxied requests via database-stored API keys
// and applies the per-key and per-user usage gates.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/security"
	"gorm.io/gorm"
)

// Denial errors, each carrying a stable reason code for the route layer.
var (
	ErrNoCredentials       = errors.New("no credentials")
	ErrInvalidCredential   = errors.New("invalid api key")
	ErrBanned              = errors.New("user banned")
	ErrSpendLimitExceeded  = errors.New("api key spend limit exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Reason maps a denial error to its machine-readable reason string.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials), errors.Is(err, ErrInvalidCredential):
		return "invalid_api_key"
	case errors.Is(err, ErrBanned):
		return "banned"
	case errors.Is(err, ErrSpendLimitExceeded):
		return "api_key_spend_limit_exceeded"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "internal_error"
	}
}

// StatusCode maps a denial error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNoCredentials), errors.Is(err, ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBanned), errors.Is(err, ErrSpendLimitExceeded):
		return http.StatusForbidden
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// ExtractToken pulls the API key from the Authorization bearer header or the
// X-API-Key fallback.
func ExtractToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(raw, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// AuthenticateAPIKey resolves an API key token to its key and owning user.
// It rejects unknown or revoked keys, banned users, and keys past their
// spend limit. The credit gate is separate; see CheckCredit.
func AuthenticateAPIKey(ctx context.Context, conn *gorm.DB, token string) (*models.User, *models.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, ErrNoCredentials
	}

	var apiKey models.APIKey
	errFind := conn.WithContext(ctx).
		Preload("User").
		Where("key_hash = ? AND revoked_at IS NULL", security.HashAPIKey(token)).
		First(&apiKey).Error
	switch {
	case errFind == nil:
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		return nil, nil, ErrInvalidCredential
	default:
		return nil, nil, fmt.Errorf("access: api key lookup failed: %w", errFind)
	}

	if apiKey.User == nil {
		return nil, nil, ErrInvalidCredential
	}
	if apiKey.User.BannedAt != nil {
		return nil, nil, ErrBanned
	}
	if apiKey.SpendLimitUSDMicros != nil && apiKey.SpendUSDMicrosTotal >= *apiKey.SpendLimitUSDMicros {
		return nil, nil, ErrSpendLimitExceeded
	}
	return apiKey.User, &apiKey, nil
}

// CheckCredit applies the prepaid credit gate: the user must have balance
// left after netting lifetime spend.
func CheckCredit(user *models.User) error {
	if billing.RemainingUSDMicros(user.BalanceUSDCents, user.SpendUSDMicrosTotal) <= 0 {
		return ErrInsufficientBalance
	}
	return nil
}
