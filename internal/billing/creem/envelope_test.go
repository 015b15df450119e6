package creem

import "testing"

func TestParseEnvelopeCheckoutCompleted(t *testing.T) {
	raw := []byte(`{
		"id": "evt_abc",
		"eventType": "checkout.completed",
		"object": {
			"id": "ch_123",
			"request_id": "topup_deadbeef",
			"order": {"id": "ord_9", "currency": "usd", "product": "prod_7", "amount_paid": 2000},
			"customer": {"email": "Buyer@Example.COM"},
			"metadata": {"purpose": "top_up", "userId": 42, "orgId": 1, "units": "20"}
		}
	}`)

	env := ParseEnvelope(raw)
	if env.EventID != "evt_abc" || env.EventType != "checkout.completed" {
		t.Fatalf("event fields: %+v", env)
	}
	if env.CheckoutID != "ch_123" {
		t.Fatalf("checkout id = %q", env.CheckoutID)
	}
	if env.RequestID != "topup_deadbeef" {
		t.Fatalf("request id = %q", env.RequestID)
	}
	if env.OrderID != "ord_9" {
		t.Fatalf("order id = %q", env.OrderID)
	}
	if env.Currency != "USD" {
		t.Fatalf("currency = %q, want uppercased USD", env.Currency)
	}
	if env.ProductID != "prod_7" {
		t.Fatalf("product id = %q", env.ProductID)
	}
	if env.PayerEmail != "buyer@example.com" {
		t.Fatalf("payer email = %q, want lowercased", env.PayerEmail)
	}
	if env.Purpose != PurposeTopUp || env.UserID != 42 || env.OrgID != 1 {
		t.Fatalf("metadata: purpose=%q user=%d org=%d", env.Purpose, env.UserID, env.OrgID)
	}
	if env.AmountTotalCents == nil || *env.AmountTotalCents != 2000 {
		t.Fatalf("amount = %v, want 2000", env.AmountTotalCents)
	}
}

func TestParseEnvelopeFallbackShapes(t *testing.T) {
	raw := []byte(`{
		"id": "evt_alt",
		"eventType": "checkout.completed",
		"object": {
			"checkout_id": "ch_alt",
			"request_id": "topup_alt",
			"transaction": {"currency": "eur", "amount_paid": 555, "customer_email": "alt@example.com"},
			"product": {"id": "prod_alt"}
		}
	}`)

	env := ParseEnvelope(raw)
	if env.CheckoutID != "ch_alt" {
		t.Fatalf("checkout id = %q", env.CheckoutID)
	}
	if env.Currency != "EUR" {
		t.Fatalf("currency = %q", env.Currency)
	}
	if env.ProductID != "prod_alt" {
		t.Fatalf("product id = %q", env.ProductID)
	}
	if env.AmountTotalCents == nil || *env.AmountTotalCents != 555 {
		t.Fatalf("amount = %v", env.AmountTotalCents)
	}
	if env.PayerEmail != "alt@example.com" {
		t.Fatalf("payer email = %q", env.PayerEmail)
	}
}

func TestParseEnvelopeMissingObject(t *testing.T) {
	env := ParseEnvelope([]byte(`{"id":"evt_only","eventType":"something.else"}`))
	if env.EventID != "evt_only" || env.EventType != "something.else" {
		t.Fatalf("env = %+v", env)
	}
	if env.RequestID != "" || env.AmountTotalCents != nil {
		t.Fatalf("object fields set without object: %+v", env)
	}
}

func TestEnvelopeIsRefund(t *testing.T) {
	cases := map[string]bool{
		"refund.created":      true,
		"payment.Chargeback":  true,
		"dispute.opened":      true,
		"checkout.completed":  false,
		"subscription.update": false,
	}
	for eventType, want := range cases {
		env := Envelope{EventType: eventType}
		if env.IsRefund() != want {
			t.Fatalf("IsRefund(%q) = %v, want %v", eventType, env.IsRefund(), want)
		}
	}
}
