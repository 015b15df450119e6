package creem

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Event types and metadata values understood by the webhook.
const (
	EventCheckoutCompleted = "checkout.completed"
	PurposeTopUp           = "top_up"
)

// Envelope holds the fields extracted from a webhook payload. Creem has
// shipped several payload shapes, so every field probes a chain of locations
// and keeps the first plausible value. Missing fields stay zero.
type Envelope struct {
	EventID          string
	EventType        string
	RequestID        string
	CheckoutID       string
	OrderID          string
	Currency         string
	ProductID        string
	AmountTotalCents *int64
	PayerEmail       string
	Purpose          string
	OrgID            uint64
	UserID           uint64
}

// IsRefund reports whether the event type signals a refund, chargeback or
// dispute.
func (e Envelope) IsRefund() bool {
	lowered := strings.ToLower(e.EventType)
	for _, keyword := range []string{"refund", "chargeback", "dispute"} {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// ParseEnvelope extracts the interesting fields from a raw webhook body.
// It never fails; callers validate the fields they need.
func ParseEnvelope(raw []byte) Envelope {
	root := gjson.ParseBytes(raw)
	env := Envelope{
		EventID:   strings.TrimSpace(root.Get("id").String()),
		EventType: strings.TrimSpace(root.Get("eventType").String()),
	}

	obj := root.Get("object")
	if !obj.IsObject() {
		return env
	}

	env.RequestID = strings.TrimSpace(obj.Get("request_id").String())
	if id := obj.Get("id"); id.Type == gjson.String {
		env.CheckoutID = strings.TrimSpace(id.String())
	}
	if env.CheckoutID == "" {
		env.CheckoutID = firstString(obj, "checkout_id", "checkoutId", "checkout", "checkout.id")
	}
	env.OrderID = firstString(obj, "order.id")
	env.Currency = extractCurrency(obj)
	env.ProductID = extractProductID(obj)
	env.AmountTotalCents = extractAmountTotalCents(obj)
	env.PayerEmail = extractPayerEmail(obj)

	meta := obj.Get("metadata")
	if meta.IsObject() {
		env.Purpose = strings.TrimSpace(meta.Get("purpose").String())
		env.OrgID = meta.Get("orgId").Uint()
		env.UserID = meta.Get("userId").Uint()
	}
	return env
}

func firstString(obj gjson.Result, paths ...string) string {
	for _, path := range paths {
		value := obj.Get(path)
		if value.Type == gjson.String && strings.TrimSpace(value.String()) != "" {
			return strings.TrimSpace(value.String())
		}
	}
	return ""
}

func extractCurrency(obj gjson.Result) string {
	raw := firstString(obj, "order.currency", "transaction.currency", "product.currency")
	if raw == "" {
		return ""
	}
	upper := strings.ToUpper(raw)
	if len(upper) > 8 {
		upper = upper[:8]
	}
	return upper
}

func extractProductID(obj gjson.Result) string {
	if id := firstString(obj, "order.product"); id != "" {
		return id
	}
	product := obj.Get("product")
	if product.IsObject() {
		return firstString(product, "id")
	}
	if product.Type == gjson.String {
		return strings.TrimSpace(product.String())
	}
	return ""
}

func extractAmountTotalCents(obj gjson.Result) *int64 {
	for _, path := range []string{"amount_total", "transaction.amount_paid", "order.amount_paid"} {
		value := obj.Get(path)
		if value.Type == gjson.Number {
			cents := value.Int()
			return &cents
		}
	}
	return nil
}

func extractPayerEmail(obj gjson.Result) string {
	email := firstString(obj,
		"customer.email",
		"order.customer_email",
		"order.email",
		"order.customer.email",
		"transaction.customer_email",
	)
	if email == "" {
		return ""
	}
	email = strings.ToLower(email)
	if len(email) > 254 {
		email = email[:254]
	}
	return email
}
