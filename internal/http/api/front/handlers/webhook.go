package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/billing/creem"
	"github.com/ledgergate/ledgergate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WebhookHandler processes payment-provider webhooks. Every response after
// signature verification is 200 {"ok":true}: the provider retries on other
// statuses and all outcomes are already recorded in the event table.
type WebhookHandler struct {
	db            *gorm.DB
	webhookSecret string
	productID     string
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(db *gorm.DB, webhookSecret, productID string) *WebhookHandler {
	return &WebhookHandler{
		db:            db,
		webhookSecret: strings.TrimSpace(webhookSecret),
		productID:     strings.TrimSpace(productID),
	}
}

// Creem handles POST /v1/webhook/creem.
func (h *WebhookHandler) Creem(c *gin.Context) {
	ctx := c.Request.Context()

	signature := strings.TrimSpace(c.GetHeader(creem.SignatureHeader))
	raw, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if signature == "" || !creem.VerifySignature(h.webhookSecret, raw, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	env := creem.ParseEnvelope(raw)
	if env.EventID == "" || env.EventType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	// Replay check before any side effect.
	exists, errExists := billing.CreemEventExists(ctx, h.db, env.EventID)
	if errExists != nil {
		log.WithError(errExists).Warn("webhook: event lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if exists {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	fields := billing.ProviderFields{
		CheckoutID:       env.CheckoutID,
		OrderID:          env.OrderID,
		Currency:         env.Currency,
		AmountTotalCents: env.AmountTotalCents,
		PayerEmail:       env.PayerEmail,
	}

	if !strings.EqualFold(env.EventType, creem.EventCheckoutCompleted) {
		if env.Purpose == creem.PurposeTopUp && env.IsRefund() {
			h.handleRefund(c, env)
		}
		h.record(c, env, models.CreemEventProcessed, raw, 0)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if env.RequestID == "" {
		h.record(c, env, models.CreemEventFailed, raw, 0)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if env.Purpose != creem.PurposeTopUp {
		h.record(c, env, models.CreemEventProcessed, raw, 0)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if h.productID == "" || env.ProductID == "" || env.ProductID != h.productID {
		h.record(c, env, models.CreemEventFailed, raw, 0)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if env.Currency != "USD" {
		if _, errFail := billing.MarkTopupFailed(ctx, h.db, env.RequestID, fields); errFail != nil && !errors.Is(errFail, billing.ErrTopupNotFound) {
			log.WithError(errFail).Warn("webhook: mark topup failed errored")
		}
		h.record(c, env, models.CreemEventFailed, raw, 0)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	topup, errComplete := billing.CompleteTopup(ctx, h.db, env.RequestID, fields)
	if errComplete != nil {
		if !errors.Is(errComplete, billing.ErrTopupNotFound) {
			log.WithError(errComplete).Warnf("webhook: topup completion failed (request=%s)", env.RequestID)
		}
		h.record(c, env, models.CreemEventFailed, raw, 0)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	h.record(c, env, models.CreemEventProcessed, raw, topup.Units)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *WebhookHandler) handleRefund(c *gin.Context, env creem.Envelope) {
	ctx := c.Request.Context()
	topup, errFind := billing.FindTopup(ctx, h.db, env.RequestID, env.OrderID, env.CheckoutID)
	if errFind != nil {
		if !errors.Is(errFind, billing.ErrTopupNotFound) {
			log.WithError(errFind).Warn("webhook: refund topup lookup failed")
		}
		return
	}
	if errRefund := billing.ProcessReferralRefund(ctx, h.db, topup, time.Now().UTC()); errRefund != nil {
		log.WithError(errRefund).Warn("referral: refund processing failed")
	}
}

func (h *WebhookHandler) record(c *gin.Context, env creem.Envelope, status string, raw []byte, units int64) {
	event := models.CreemEvent{
		CreemEventID: env.EventID,
		EventType:    env.EventType,
		Status:       status,
		AmountUnits:  units,
	}
	if env.OrgID != 0 {
		orgID := env.OrgID
		event.OrgID = &orgID
	}
	if env.UserID != 0 {
		userID := env.UserID
		event.UserID = &userID
	}
	if env.AmountTotalCents != nil {
		cents := *env.AmountTotalCents
		if cents < 0 {
			cents = 0
		}
		event.AmountTotalCents = &cents
	}
	if env.Currency != "" {
		currency := env.Currency
		event.Currency = &currency
	}
	if _, errRecord := billing.RecordCreemEvent(c.Request.Context(), h.db, &event, raw); errRecord != nil {
		log.WithError(errRecord).Warn("webhook: record event failed")
	}
}
