package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ledgergate/ledgergate/internal/db"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/security"
	"gorm.io/gorm"
)

func setupAccessDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:access_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func issueKey(t *testing.T, conn *gorm.DB, user *models.User, limit *int64) (string, *models.APIKey) {
	t.Helper()
	token, errGen := security.GenerateAPIKey()
	if errGen != nil {
		t.Fatalf("generate key: %v", errGen)
	}
	key := models.APIKey{
		UserID:              user.ID,
		Name:                "test",
		KeyHash:             security.HashAPIKey(token),
		Prefix:              security.KeyPrefix(token),
		SpendLimitUSDMicros: limit,
	}
	if errCreate := conn.Create(&key).Error; errCreate != nil {
		t.Fatalf("create key: %v", errCreate)
	}
	return token, &key
}

func TestAuthenticateAPIKey(t *testing.T) {
	conn := setupAccessDB(t)
	ctx := context.Background()

	user := models.User{Email: "keys@example.com", PasswordHash: "x", BalanceUSDCents: 100}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	token, _ := issueKey(t, conn, &user, nil)

	gotUser, gotKey, errAuth := AuthenticateAPIKey(ctx, conn, token)
	if errAuth != nil {
		t.Fatalf("auth: %v", errAuth)
	}
	if gotUser.ID != user.ID || gotKey.UserID != user.ID {
		t.Fatalf("resolved wrong owner: user=%d key.user=%d", gotUser.ID, gotKey.UserID)
	}

	if _, _, errAuth = AuthenticateAPIKey(ctx, conn, ""); !errors.Is(errAuth, ErrNoCredentials) {
		t.Fatalf("empty token err = %v", errAuth)
	}
	if _, _, errAuth = AuthenticateAPIKey(ctx, conn, "sk-0000"); !errors.Is(errAuth, ErrInvalidCredential) {
		t.Fatalf("unknown token err = %v", errAuth)
	}
}

func TestAuthenticateAPIKeyRevoked(t *testing.T) {
	conn := setupAccessDB(t)
	user := models.User{Email: "revoked@example.com", PasswordHash: "x"}
	conn.Create(&user)
	token, key := issueKey(t, conn, &user, nil)

	now := time.Now().UTC()
	conn.Model(key).Update("revoked_at", &now)

	if _, _, errAuth := AuthenticateAPIKey(context.Background(), conn, token); !errors.Is(errAuth, ErrInvalidCredential) {
		t.Fatalf("revoked key err = %v", errAuth)
	}
}

func TestAuthenticateAPIKeyBannedUser(t *testing.T) {
	conn := setupAccessDB(t)
	now := time.Now().UTC()
	user := models.User{Email: "banned@example.com", PasswordHash: "x", BannedAt: &now}
	conn.Create(&user)
	token, _ := issueKey(t, conn, &user, nil)

	if _, _, errAuth := AuthenticateAPIKey(context.Background(), conn, token); !errors.Is(errAuth, ErrBanned) {
		t.Fatalf("banned user err = %v", errAuth)
	}
}

func TestAuthenticateAPIKeySpendLimit(t *testing.T) {
	conn := setupAccessDB(t)
	user := models.User{Email: "limited@example.com", PasswordHash: "x", BalanceUSDCents: 10_000}
	conn.Create(&user)

	limit := int64(500_000)
	token, key := issueKey(t, conn, &user, &limit)

	// Below the limit the key works.
	if _, _, errAuth := AuthenticateAPIKey(context.Background(), conn, token); errAuth != nil {
		t.Fatalf("under limit: %v", errAuth)
	}

	conn.Model(key).Update("spend_usd_micros_total", limit)
	if _, _, errAuth := AuthenticateAPIKey(context.Background(), conn, token); !errors.Is(errAuth, ErrSpendLimitExceeded) {
		t.Fatalf("at limit err = %v", errAuth)
	}
}

func TestCheckCredit(t *testing.T) {
	user := &models.User{BalanceUSDCents: 100, SpendUSDMicrosTotal: 0}
	if errCredit := CheckCredit(user); errCredit != nil {
		t.Fatalf("funded user rejected: %v", errCredit)
	}

	user.SpendUSDMicrosTotal = 100 * 10_000
	if errCredit := CheckCredit(user); !errors.Is(errCredit, ErrInsufficientBalance) {
		t.Fatalf("exhausted user err = %v", errCredit)
	}
}

func TestReasonAndStatusCode(t *testing.T) {
	cases := []struct {
		err    error
		reason string
		status int
	}{
		{ErrNoCredentials, "invalid_api_key", http.StatusUnauthorized},
		{ErrInvalidCredential, "invalid_api_key", http.StatusUnauthorized},
		{ErrBanned, "banned", http.StatusForbidden},
		{ErrSpendLimitExceeded, "api_key_spend_limit_exceeded", http.StatusForbidden},
		{ErrInsufficientBalance, "insufficient_balance", http.StatusPaymentRequired},
		{errors.New("boom"), "internal_error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Reason(tc.err); got != tc.reason {
			t.Fatalf("Reason(%v) = %s, want %s", tc.err, got, tc.reason)
		}
		if got := StatusCode(tc.err); got != tc.status {
			t.Fatalf("StatusCode(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer sk-abc")
	if got := ExtractToken(req); got != "sk-abc" {
		t.Fatalf("bearer token = %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("X-API-Key", "sk-xyz")
	if got := ExtractToken(req); got != "sk-xyz" {
		t.Fatalf("x-api-key token = %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	if got := ExtractToken(req); got != "" {
		t.Fatalf("empty headers token = %q", got)
	}
}
