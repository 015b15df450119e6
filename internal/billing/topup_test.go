package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgergate/ledgergate/internal/models"
)

func TestCompleteTopupCreditsOnce(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	user := createBillingUser(t, conn, "payer@example.com", 250)

	topup, errCreate := CreateTopup(ctx, conn, 1, user.ID, GenerateTopupRequestID(), 20, "203.0.113.9", "dev-1")
	if errCreate != nil {
		t.Fatalf("create topup: %v", errCreate)
	}

	fields := ProviderFields{
		CheckoutID: "ch_1",
		OrderID:    "ord_1",
		Currency:   "USD",
		PayerEmail: "Payer@Example.com",
	}
	completed, errComplete := CompleteTopup(ctx, conn, topup.RequestID, fields)
	if errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}
	if completed.Status != models.TopupStatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.BalanceUSDCents != 250+20*CentsPerUnit {
		t.Fatalf("balance = %d, want %d", reloaded.BalanceUSDCents, 250+20*CentsPerUnit)
	}
	if reloaded.FirstPaymentEmail == nil || *reloaded.FirstPaymentEmail != "Payer@Example.com" {
		t.Fatalf("first payment email = %v", reloaded.FirstPaymentEmail)
	}
	if reloaded.FirstPaymentIP == nil || *reloaded.FirstPaymentIP != "203.0.113.9" {
		t.Fatalf("first payment ip = %v", reloaded.FirstPaymentIP)
	}

	// Redelivery: same request id must be a no-op.
	again, errAgain := CompleteTopup(ctx, conn, topup.RequestID, fields)
	if errAgain != nil {
		t.Fatalf("second complete: %v", errAgain)
	}
	if again.Status != models.TopupStatusCompleted {
		t.Fatalf("second status = %s", again.Status)
	}
	conn.First(&reloaded, user.ID)
	if reloaded.BalanceUSDCents != 250+20*CentsPerUnit {
		t.Fatalf("balance after replay = %d, credited twice", reloaded.BalanceUSDCents)
	}

	var ledgerCount int64
	conn.Model(&models.BalanceLedgerEntry{}).Where("user_id = ?", user.ID).Count(&ledgerCount)
	if ledgerCount != 1 {
		t.Fatalf("ledger entries = %d, want 1", ledgerCount)
	}
}

func TestCompleteTopupUnknownRequest(t *testing.T) {
	conn := setupBillingDB(t)
	if _, errComplete := CompleteTopup(context.Background(), conn, "topup_missing", ProviderFields{}); !errors.Is(errComplete, ErrTopupNotFound) {
		t.Fatalf("err = %v, want ErrTopupNotFound", errComplete)
	}
}

func TestCompleteTopupBalanceCap(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	user := createBillingUser(t, conn, "cap@example.com", MaxBalanceUSDCents-50)

	topup, errCreate := CreateTopup(ctx, conn, 1, user.ID, GenerateTopupRequestID(), 5, "", "")
	if errCreate != nil {
		t.Fatalf("create topup: %v", errCreate)
	}
	if _, errComplete := CompleteTopup(ctx, conn, topup.RequestID, ProviderFields{}); !errors.Is(errComplete, ErrBalanceTooLarge) {
		t.Fatalf("err = %v, want ErrBalanceTooLarge", errComplete)
	}

	// Nothing may have been applied.
	var reloaded models.User
	conn.First(&reloaded, user.ID)
	if reloaded.BalanceUSDCents != MaxBalanceUSDCents-50 {
		t.Fatalf("balance mutated to %d", reloaded.BalanceUSDCents)
	}
	var after models.BillingTopup
	conn.First(&after, topup.ID)
	if after.Status != models.TopupStatusPending {
		t.Fatalf("topup status = %s, want pending", after.Status)
	}
}

func TestMarkTopupFailedIsTerminalAfterCompletion(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	user := createBillingUser(t, conn, "failer@example.com", 0)

	topup, _ := CreateTopup(ctx, conn, 1, user.ID, GenerateTopupRequestID(), 5, "", "")
	if _, errComplete := CompleteTopup(ctx, conn, topup.RequestID, ProviderFields{}); errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}

	after, errFail := MarkTopupFailed(ctx, conn, topup.RequestID, ProviderFields{})
	if errFail != nil {
		t.Fatalf("mark failed: %v", errFail)
	}
	if after.Status != models.TopupStatusCompleted {
		t.Fatalf("status = %s, completed must stay terminal", after.Status)
	}
}

func TestFindTopupFallbackLookups(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()
	user := createBillingUser(t, conn, "lookup@example.com", 0)

	topup, _ := CreateTopup(ctx, conn, 1, user.ID, GenerateTopupRequestID(), 5, "", "")
	if _, errComplete := CompleteTopup(ctx, conn, topup.RequestID, ProviderFields{CheckoutID: "ch_find", OrderID: "ord_find"}); errComplete != nil {
		t.Fatalf("complete: %v", errComplete)
	}

	byOrder, errOrder := FindTopup(ctx, conn, "", "ord_find", "")
	if errOrder != nil || byOrder.ID != topup.ID {
		t.Fatalf("find by order: %v", errOrder)
	}
	byCheckout, errCheckout := FindTopup(ctx, conn, "", "", "ch_find")
	if errCheckout != nil || byCheckout.ID != topup.ID {
		t.Fatalf("find by checkout: %v", errCheckout)
	}
	if _, errMissing := FindTopup(ctx, conn, "", "", ""); !errors.Is(errMissing, ErrTopupNotFound) {
		t.Fatalf("empty lookup err = %v", errMissing)
	}
}

func TestRecordCreemEventDuplicate(t *testing.T) {
	conn := setupBillingDB(t)
	ctx := context.Background()

	first := models.CreemEvent{CreemEventID: "evt_dup", EventType: "checkout.completed", Status: models.CreemEventProcessed}
	created, errRecord := RecordCreemEvent(ctx, conn, &first, []byte(`{}`))
	if errRecord != nil || !created {
		t.Fatalf("first record: created=%v err=%v", created, errRecord)
	}

	second := models.CreemEvent{CreemEventID: "evt_dup", EventType: "checkout.completed", Status: models.CreemEventProcessed}
	created, errRecord = RecordCreemEvent(ctx, conn, &second, []byte(`{}`))
	if errRecord != nil {
		t.Fatalf("duplicate record err: %v", errRecord)
	}
	if created {
		t.Fatal("duplicate insert reported created")
	}

	exists, errExists := CreemEventExists(ctx, conn, "evt_dup")
	if errExists != nil || !exists {
		t.Fatalf("exists = %v, err = %v", exists, errExists)
	}
}
