package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/ratelimit"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InviteHandler records invite-link visits and serves the referral summary.
type InviteHandler struct {
	db        *gorm.DB
	limiter   *ratelimit.Limiter
	publicURL string
}

// NewInviteHandler constructs an InviteHandler.
func NewInviteHandler(db *gorm.DB, limiter *ratelimit.Limiter, publicURL string) *InviteHandler {
	return &InviteHandler{db: db, limiter: limiter, publicURL: strings.TrimRight(publicURL, "/")}
}

type inviteVisitRequest struct {
	Code string `json:"code" binding:"required"`
}

// Visit logs one landing-page visit through an invite link. Logging is
// best-effort; the endpoint always answers ok so a storage hiccup never
// breaks the landing page.
func (h *InviteHandler) Visit(c *gin.Context) {
	var req inviteVisitRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" || len(code) > 32 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
		return
	}

	if !h.limiter.Allow(c.Request.Context(), clientIP(c)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}

	visit := models.InviteVisit{InviteCode: code}
	if ip := clientIP(c); ip != "" {
		visit.VisitorIP = &ip
	}
	if device := deviceID(c); device != "" {
		visit.VisitorDeviceID = &device
	}
	if agent := strings.TrimSpace(c.GetHeader("User-Agent")); agent != "" {
		if len(agent) > 256 {
			agent = agent[:256]
		}
		visit.UserAgent = &agent
	}

	var inviter models.User
	errInviter := h.db.WithContext(c.Request.Context()).
		Where("invite_code = ?", code).
		First(&inviter).Error
	if errInviter == nil {
		visit.InviterUserID = &inviter.ID
	} else if !errors.Is(errInviter, gorm.ErrRecordNotFound) {
		log.WithError(errInviter).Warn("invite: inviter lookup failed")
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&visit).Error; errCreate != nil {
		log.WithError(errCreate).Warn("invite: record visit failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Summary reports the caller's invite link and referral outcomes.
func (h *InviteHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()
	userID := getUserID(c)

	var user models.User
	if errFind := h.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	out := gin.H{
		"inviteCode": "",
		"inviteUrl":  "",
	}
	if user.InviteCode != nil {
		out["inviteCode"] = *user.InviteCode
		out["inviteUrl"] = h.publicURL + "/?invite=" + *user.InviteCode
	}

	var visits int64
	if user.InviteCode != nil {
		if errCount := h.db.WithContext(ctx).Model(&models.InviteVisit{}).
			Where("invite_code = ?", *user.InviteCode).
			Count(&visits).Error; errCount != nil {
			log.WithError(errCount).Warn("invite: visit count failed")
		}
	}
	out["visits"] = visits

	var signups int64
	if errCount := h.db.WithContext(ctx).Model(&models.User{}).
		Where("invited_by_user_id = ?", userID).
		Count(&signups).Error; errCount != nil {
		log.WithError(errCount).Warn("invite: signup count failed")
	}
	out["signups"] = signups

	type bonusRow struct {
		Status string
		Count  int64
		Cents  int64
	}
	var bonuses []bonusRow
	errBonus := h.db.WithContext(ctx).Model(&models.ReferralBonusEvent{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(bonus_usd_cents), 0) AS cents").
		Where("inviter_user_id = ?", userID).
		Group("status").
		Scan(&bonuses).Error
	if errBonus != nil {
		log.WithError(errBonus).Warn("invite: bonus summary failed")
	}
	byStatus := make(map[string]gin.H, len(bonuses))
	for _, row := range bonuses {
		byStatus[row.Status] = gin.H{"count": row.Count, "bonusUsdCents": row.Cents}
	}
	out["bonuses"] = byStatus

	c.JSON(http.StatusOK, out)
}
