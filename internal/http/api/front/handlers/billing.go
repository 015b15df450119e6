package handlers

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/billing/creem"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Top-up amounts accepted at checkout, in whole USD.
const (
	minTopupUnits = 5
	maxTopupUnits = 5000
)

// BillingHandler serves top-up checkout, status polling, the balance ledger
// and billing settings.
type BillingHandler struct {
	db        *gorm.DB
	creem     *creem.Client
	limiter   *ratelimit.Limiter
	publicURL string
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(db *gorm.DB, client *creem.Client, limiter *ratelimit.Limiter, publicURL string) *BillingHandler {
	return &BillingHandler{db: db, creem: client, limiter: limiter, publicURL: strings.TrimRight(publicURL, "/")}
}

type checkoutRequest struct {
	AmountUSD int64 `json:"amount_usd" binding:"required"`
}

// CheckoutTopup creates a pending top-up and a provider checkout session.
func (h *BillingHandler) CheckoutTopup(c *gin.Context) {
	ctx := c.Request.Context()
	userID := getUserID(c)
	orgID := getOrgID(c)

	var org models.Organization
	if errFind := h.db.WithContext(ctx).First(&org, orgID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !org.BillingTopupEnabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "billing_topup_disabled"})
		return
	}
	if h.creem == nil || !h.creem.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing_not_configured"})
		return
	}

	var req checkoutRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}
	if req.AmountUSD < minTopupUnits || req.AmountUSD > maxTopupUnits {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}

	if !h.limiter.Allow(ctx, clientIP(c)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	requestID := billing.GenerateTopupRequestID()
	_, errCreate := billing.CreateTopup(ctx, h.db, orgID, userID, requestID, req.AmountUSD, clientIP(c), deviceID(c))
	if errCreate != nil {
		log.WithError(errCreate).Warn("billing: create topup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	checkoutURL, errCheckout := h.creem.CreateCheckout(ctx, creem.CheckoutParams{
		RequestID:     requestID,
		Units:         req.AmountUSD,
		SuccessURL:    h.publicURL + "/billing?request_id=" + requestID,
		CustomerEmail: user.Email,
		OrgID:         orgID,
		UserID:        userID,
	})
	if errCheckout != nil {
		if _, errFail := billing.MarkTopupFailed(ctx, h.db, requestID, billing.ProviderFields{}); errFail != nil {
			log.WithError(errFail).Warn("billing: mark topup failed errored")
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment_provider_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkoutUrl": checkoutURL, "requestId": requestID})
}

// TopupStatus reports one top-up's state for checkout-return polling.
func (h *BillingHandler) TopupStatus(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := strings.TrimSpace(c.Query("request_id"))
	if requestID == "" {
		requestID = strings.TrimSpace(c.Query("requestId"))
	}
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_request_id"})
		return
	}

	topup, errFind := billing.GetTopupForUser(ctx, h.db, getOrgID(c), getUserID(c), requestID)
	if errFind != nil {
		if errors.Is(errFind, billing.ErrTopupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	out := gin.H{"requestId": topup.RequestID, "status": topup.Status, "units": topup.Units}
	if topup.Status == models.TopupStatusCompleted {
		var user models.User
		if errUser := h.db.WithContext(ctx).First(&user, getUserID(c)).Error; errUser == nil {
			remaining := billing.RemainingUSDMicros(user.BalanceUSDCents, user.SpendUSDMicrosTotal)
			out["newBalance"] = math.Round(float64(remaining)/10_000) / 100
		}
	}
	c.JSON(http.StatusOK, out)
}

type ledgerQuery struct {
	Limit  int `form:"limit,default=50"`
	Offset int `form:"offset,default=0"`
}

// Ledger lists the caller's balance ledger entries, newest first.
func (h *BillingHandler) Ledger(c *gin.Context) {
	var q ledgerQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query"})
		return
	}

	entries, total, errList := billing.ListLedger(c.Request.Context(), h.db, getUserID(c), q.Limit, q.Offset)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, gin.H{
			"id":                 entry.ID,
			"entry_type":         entry.EntryType,
			"delta_usd_micros":   entry.DeltaUSDMicros,
			"balance_usd_micros": entry.BalanceUSDMicros,
			"created_at":         entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

// Settings reports billing configuration visible to the user.
func (h *BillingHandler) Settings(c *gin.Context) {
	var org models.Organization
	if errFind := h.db.WithContext(c.Request.Context()).First(&org, getOrgID(c)).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"billingTopupEnabled": org.BillingTopupEnabled})
}
