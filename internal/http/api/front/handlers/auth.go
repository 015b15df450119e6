package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler handles registration, login and session inspection.
type AuthHandler struct {
	db         *gorm.DB
	jwtSecret  string
	sessionTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtSecret string, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{db: db, jwtSecret: jwtSecret, sessionTTL: sessionTTL}
}

type registerRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	InviteCode string `json:"invite_code"`
}

// Register creates a user account. If a valid invite code is supplied the
// new account is attributed to the inviting user; signup IP, device cookie
// and user agent are captured for later referral fraud checks.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		return
	}

	passwordHash, errHash := security.HashPassword(req.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}
	inviteCode, errCode := security.GenerateInviteCode()
	if errCode != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}

	user := models.User{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         "user",
		GroupName:    "default",
		InviteCode:   &inviteCode,
	}
	if ip := clientIP(c); ip != "" {
		user.SignupIP = &ip
	}
	if device := deviceID(c); device != "" {
		user.SignupDeviceID = &device
	}
	if agent := strings.TrimSpace(c.GetHeader("User-Agent")); agent != "" {
		if len(agent) > 256 {
			agent = agent[:256]
		}
		user.SignupUserAgent = &agent
	}

	if code := strings.TrimSpace(req.InviteCode); code != "" {
		var inviter models.User
		errInviter := h.db.WithContext(c.Request.Context()).
			Where("invite_code = ?", code).
			First(&inviter).Error
		if errInviter == nil {
			now := time.Now().UTC()
			user.InvitedByUserID = &inviter.ID
			user.InvitedAt = &now
		} else if !errors.Is(errInviter, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
			return
		}
	}

	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		msg := strings.ToLower(errCreate.Error())
		if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		log.WithError(errCreate).Warn("auth: register failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}

	h.issueSession(c, &user)
	c.JSON(http.StatusOK, gin.H{"user": serializeUser(&user)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if errFind != nil || !security.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if user.BannedAt != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "banned"})
		return
	}

	now := time.Now().UTC()
	_ = h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("last_login_at", &now).Error

	h.issueSession(c, &user)
	c.JSON(http.StatusOK, gin.H{"user": serializeUser(&user)})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(SessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": serializeUser(&user)})
}

func (h *AuthHandler) issueSession(c *gin.Context, user *models.User) {
	token, errToken := security.GenerateSessionToken(h.jwtSecret, user.ID, user.Email, user.Role, h.sessionTTL)
	if errToken != nil {
		log.WithError(errToken).Warn("auth: session token failed")
		return
	}
	c.SetCookie(SessionCookieName, token, int(h.sessionTTL.Seconds()), "/", "", false, true)
}

func serializeUser(user *models.User) gin.H {
	out := gin.H{
		"id":                user.ID,
		"email":             user.Email,
		"role":              user.Role,
		"group_name":        user.GroupName,
		"balance_usd_cents": user.BalanceUSDCents,
		"spend_usd_micros":  user.SpendUSDMicrosTotal,
		"created_at":        user.CreatedAt,
		"banned":            user.BannedAt != nil,
	}
	if user.InviteCode != nil {
		out["invite_code"] = *user.InviteCode
	}
	return out
}
