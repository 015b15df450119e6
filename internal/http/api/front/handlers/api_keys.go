package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// APIKeyHandler handles API key endpoints for front users.
type APIKeyHandler struct {
	db *gorm.DB
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(db *gorm.DB) *APIKeyHandler {
	return &APIKeyHandler{db: db}
}

type createKeyRequest struct {
	Name                string `json:"name" binding:"required"`
	SpendLimitUSDMicros *int64 `json:"spend_limit_usd_micros"`
}

// Create issues a new API key. The full key is returned once here; later
// reads only show the prefix until the one-time reveal consumes it.
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID := getUserID(c)

	var req createKeyRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return
	}
	if req.SpendLimitUSDMicros != nil && *req.SpendLimitUSDMicros <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid spend limit"})
		return
	}

	plaintext, errGenerate := security.GenerateAPIKey()
	if errGenerate != nil {
		log.WithError(errGenerate).Warn("api keys: generate failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	row := models.APIKey{
		UserID:              userID,
		Name:                name,
		KeyHash:             security.HashAPIKey(plaintext),
		Prefix:              security.KeyPrefix(plaintext),
		KeyPlaintext:        &plaintext,
		SpendLimitUSDMicros: req.SpendLimitUSDMicros,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("api keys: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	out := h.serializeAPIKey(&row)
	out["key"] = plaintext
	c.JSON(http.StatusOK, gin.H{"api_key": out})
}

// List returns the caller's API keys, newest first.
func (h *APIKeyHandler) List(c *gin.Context) {
	var rows []models.APIKey
	errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", getUserID(c)).
		Order("created_at DESC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.serializeAPIKey(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out})
}

// Reveal returns the stored plaintext exactly once, then clears it.
func (h *APIKeyHandler) Reveal(c *gin.Context) {
	keyID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var row models.APIKey
	errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", keyID, getUserID(c)).
		First(&row).Error
	if errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if row.KeyPlaintext == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "already revealed"})
		return
	}

	plaintext := *row.KeyPlaintext
	errClear := h.db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
		Where("id = ?", row.ID).
		Update("key_plaintext", nil).Error
	if errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reveal failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": plaintext})
}

// Revoke disables an API key. Revocation is a soft delete and permanent.
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	keyID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	now := h.db.NowFunc()
	result := h.db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", keyID, getUserID(c)).
		Updates(map[string]any{"revoked_at": &now, "key_plaintext": nil})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *APIKeyHandler) serializeAPIKey(row *models.APIKey) gin.H {
	return gin.H{
		"id":                     row.ID,
		"name":                   row.Name,
		"key_prefix":             row.Prefix,
		"status":                 row.Status(),
		"spend_usd_micros":       row.SpendUSDMicrosTotal,
		"spend_limit_usd_micros": row.SpendLimitUSDMicros,
		"revealable":             row.KeyPlaintext != nil,
		"last_used_at":           row.LastUsedAt,
		"revoked_at":             row.RevokedAt,
		"created_at":             row.CreatedAt,
	}
}
