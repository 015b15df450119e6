package billing

import (
	"context"
	"testing"
	"time"

	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

func TestComputeReferralBonusUSDCents(t *testing.T) {
	cases := []struct {
		units int64
		want  int64
	}{
		{0, 0},
		{-5, 0},
		{5, 125},    // 25% of $5
		{20, 500},   // 25% of $20
		{400, 10_000},
		{5000, 10_000}, // capped at $100
	}
	for _, tc := range cases {
		if got := ComputeReferralBonusUSDCents(tc.units); got != tc.want {
			t.Fatalf("bonus(%d) = %d, want %d", tc.units, got, tc.want)
		}
	}
}

func createInvitedUser(t *testing.T, conn *gorm.DB, email string, inviterID uint64) *models.User {
	t.Helper()
	user := createBillingUser(t, conn, email, 0)
	now := time.Now().UTC()
	user.InvitedByUserID = &inviterID
	user.InvitedAt = &now
	if errSave := conn.Save(user).Error; errSave != nil {
		t.Fatalf("attach inviter: %v", errSave)
	}
	return user
}

func completeInviteeTopup(t *testing.T, conn *gorm.DB, userID uint64, units int64, fields ProviderFields) *models.BillingTopup {
	t.Helper()
	ctx := context.Background()
	topup, errCreate := CreateTopup(ctx, conn, 1, userID, GenerateTopupRequestID(), units, "", "")
	if errCreate != nil {
		t.Fatalf("create topup: %v", errCreate)
	}
	completed, errComplete := CompleteTopup(ctx, conn, topup.RequestID, fields)
	if errComplete != nil {
		t.Fatalf("complete topup: %v", errComplete)
	}
	return completed
}

func loadReferralEvent(t *testing.T, conn *gorm.DB, topupID uint64) *models.ReferralBonusEvent {
	t.Helper()
	var event models.ReferralBonusEvent
	if errFind := conn.Where("topup_id = ?", topupID).First(&event).Error; errFind != nil {
		t.Fatalf("load referral event: %v", errFind)
	}
	return &event
}

func TestReferralBonusLifecycle(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	inviter := createBillingUser(t, conn, "inviter@example.com", 0)
	invitee := createInvitedUser(t, conn, "invitee@example.com", inviter.ID)

	topup := completeInviteeTopup(t, conn, invitee.ID, 20, ProviderFields{PayerEmail: "invitee@example.com"})

	event := loadReferralEvent(t, conn, topup.ID)
	if event.Status != models.ReferralStatusPending {
		t.Fatalf("status = %s, want pending", event.Status)
	}
	if event.BonusUSDCents != 500 {
		t.Fatalf("bonus = %d, want 500", event.BonusUSDCents)
	}

	// Inside the cooling window nothing confirms.
	confirmed, errSweep := ConfirmDueReferralBonuses(ctx, conn, time.Now().UTC(), 100)
	if errSweep != nil {
		t.Fatalf("early sweep: %v", errSweep)
	}
	if confirmed != 0 {
		t.Fatalf("early sweep confirmed %d", confirmed)
	}

	// After the window the bonus credits the inviter with a ledger entry.
	later := time.Now().UTC().Add((ReferralPendingHours + 1) * time.Hour)
	confirmed, errSweep = ConfirmDueReferralBonuses(ctx, conn, later, 100)
	if errSweep != nil {
		t.Fatalf("sweep: %v", errSweep)
	}
	if confirmed != 1 {
		t.Fatalf("confirmed = %d, want 1", confirmed)
	}

	var reloadedInviter models.User
	conn.First(&reloadedInviter, inviter.ID)
	if reloadedInviter.BalanceUSDCents != 500 {
		t.Fatalf("inviter balance = %d, want 500", reloadedInviter.BalanceUSDCents)
	}
	event = loadReferralEvent(t, conn, topup.ID)
	if event.Status != models.ReferralStatusConfirmed || event.ConfirmedAt == nil {
		t.Fatalf("event after sweep: status=%s confirmed_at=%v", event.Status, event.ConfirmedAt)
	}

	var bonusEntries int64
	conn.Model(&models.BalanceLedgerEntry{}).
		Where("user_id = ? AND entry_type = ?", inviter.ID, models.LedgerEntryReferralBonus).
		Count(&bonusEntries)
	if bonusEntries != 1 {
		t.Fatalf("bonus ledger entries = %d, want 1", bonusEntries)
	}
}

func TestReferralExclusivityOneActivePerInvitee(t *testing.T) {
	conn := setupBillingDB(t)
	inviter := createBillingUser(t, conn, "excl-inviter@example.com", 0)
	invitee := createInvitedUser(t, conn, "excl-invitee@example.com", inviter.ID)

	first := completeInviteeTopup(t, conn, invitee.ID, 10, ProviderFields{})
	second := completeInviteeTopup(t, conn, invitee.ID, 10, ProviderFields{})

	if loadReferralEvent(t, conn, first.ID).Status != models.ReferralStatusPending {
		t.Fatal("first topup did not stage a pending event")
	}

	var count int64
	conn.Model(&models.ReferralBonusEvent{}).
		Where("invitee_user_id = ? AND status IN ?", invitee.ID,
			[]string{models.ReferralStatusPending, models.ReferralStatusConfirmed}).
		Count(&count)
	if count != 1 {
		t.Fatalf("active events = %d, want 1", count)
	}
	var secondCount int64
	conn.Model(&models.ReferralBonusEvent{}).Where("topup_id = ?", second.ID).Count(&secondCount)
	if secondCount != 0 {
		t.Fatal("second topup staged an event despite an active one")
	}
}

func TestReferralSelfInviteBlocked(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	user := createBillingUser(t, conn, "self@example.com", 0)
	// Points at itself.
	user.InvitedByUserID = &user.ID
	if errSave := conn.Save(user).Error; errSave != nil {
		t.Fatalf("self invite: %v", errSave)
	}

	topup := completeInviteeTopup(t, conn, user.ID, 10, ProviderFields{})
	event := loadReferralEvent(t, conn, topup.ID)
	if event.Status != models.ReferralStatusBlocked {
		t.Fatalf("status = %s, want blocked", event.Status)
	}
	if event.BlockedReason == nil || *event.BlockedReason != models.ReferralBlockSelfInvite {
		t.Fatalf("blocked reason = %v, want self_invite", event.BlockedReason)
	}

	// The sweep must never pick it up.
	later := time.Now().UTC().Add((ReferralPendingHours + 1) * time.Hour)
	confirmed, errSweep := ConfirmDueReferralBonuses(ctx, conn, later, 100)
	if errSweep != nil || confirmed != 0 {
		t.Fatalf("sweep confirmed=%d err=%v", confirmed, errSweep)
	}
	var reloaded models.User
	conn.First(&reloaded, user.ID)
	if reloaded.BalanceUSDCents != 10*CentsPerUnit {
		t.Fatalf("balance = %d, self bonus credited", reloaded.BalanceUSDCents)
	}
}

func TestDetectReferralBlockReasonOrdering(t *testing.T) {
	email := "shared@example.com"
	device := "device-1"
	ip := "198.51.100.7"

	inviter := &models.User{ID: 1, Email: email, SignupDeviceID: &device, SignupIP: &ip}
	invitee := &models.User{ID: 2, Email: "other@example.com", SignupDeviceID: &device, SignupIP: &ip}
	topup := &models.BillingTopup{PayerEmail: &email, ClientDeviceID: &device, ClientIP: &ip}

	// All signals present: payment email outranks device and IP.
	if reason := DetectReferralBlockReason(inviter, invitee, topup); reason != models.ReferralBlockSamePaymentEmail {
		t.Fatalf("reason = %s, want same_payment_email", reason)
	}

	// Drop the email signal: device wins over IP.
	topup.PayerEmail = nil
	if reason := DetectReferralBlockReason(inviter, invitee, topup); reason != models.ReferralBlockSameDevice {
		t.Fatalf("reason = %s, want same_device", reason)
	}

	// Drop the device overlap: IP remains.
	invitee.SignupDeviceID = nil
	topup.ClientDeviceID = nil
	if reason := DetectReferralBlockReason(inviter, invitee, topup); reason != models.ReferralBlockSameIP {
		t.Fatalf("reason = %s, want same_ip", reason)
	}

	// No overlap at all.
	invitee.SignupIP = nil
	topup.ClientIP = nil
	if reason := DetectReferralBlockReason(inviter, invitee, topup); reason != "" {
		t.Fatalf("reason = %s, want clean", reason)
	}
}

func TestProcessReferralRefundPendingBlocks(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	inviter := createBillingUser(t, conn, "refund-inviter@example.com", 0)
	invitee := createInvitedUser(t, conn, "refund-invitee@example.com", inviter.ID)

	topup := completeInviteeTopup(t, conn, invitee.ID, 20, ProviderFields{})
	if errRefund := ProcessReferralRefund(ctx, conn, topup, time.Now().UTC()); errRefund != nil {
		t.Fatalf("refund: %v", errRefund)
	}

	event := loadReferralEvent(t, conn, topup.ID)
	if event.Status != models.ReferralStatusBlocked {
		t.Fatalf("status = %s, want blocked", event.Status)
	}
	if event.BlockedReason == nil || *event.BlockedReason != models.ReferralBlockRefunded {
		t.Fatalf("reason = %v, want refunded", event.BlockedReason)
	}
	var reloaded models.User
	conn.First(&reloaded, inviter.ID)
	if reloaded.BalanceUSDCents != 0 {
		t.Fatalf("inviter balance = %d, want 0", reloaded.BalanceUSDCents)
	}
}

func TestProcessReferralRefundConfirmedReversesAndClamps(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	inviter := createBillingUser(t, conn, "clamp-inviter@example.com", 0)
	invitee := createInvitedUser(t, conn, "clamp-invitee@example.com", inviter.ID)

	topup := completeInviteeTopup(t, conn, invitee.ID, 20, ProviderFields{})
	later := time.Now().UTC().Add((ReferralPendingHours + 1) * time.Hour)
	if confirmed, errSweep := ConfirmDueReferralBonuses(ctx, conn, later, 100); errSweep != nil || confirmed != 1 {
		t.Fatalf("sweep confirmed=%d err=%v", confirmed, errSweep)
	}

	// Simulate the inviter spending part of the bonus before the refund.
	if errSave := conn.Model(&models.User{}).Where("id = ?", inviter.ID).
		Update("balance_usd_cents", 200).Error; errSave != nil {
		t.Fatalf("spend down: %v", errSave)
	}

	if errRefund := ProcessReferralRefund(ctx, conn, topup, later.Add(time.Hour)); errRefund != nil {
		t.Fatalf("refund: %v", errRefund)
	}

	event := loadReferralEvent(t, conn, topup.ID)
	if event.Status != models.ReferralStatusReversed || event.ReversedAt == nil {
		t.Fatalf("event after refund: status=%s reversed_at=%v", event.Status, event.ReversedAt)
	}
	var reloaded models.User
	conn.First(&reloaded, inviter.ID)
	// Bonus was 500 cents but only 200 remained: clamp at zero, not -300.
	if reloaded.BalanceUSDCents != 0 {
		t.Fatalf("balance = %d, want clamped 0", reloaded.BalanceUSDCents)
	}

	var refunded models.BillingTopup
	conn.First(&refunded, topup.ID)
	if refunded.RefundedAt == nil {
		t.Fatal("topup refunded_at not set")
	}
}
