package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/channels"
	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// ChannelAdminHandler manages upstream channels.
type ChannelAdminHandler struct {
	db *gorm.DB
}

// NewChannelAdminHandler constructs a ChannelAdminHandler.
func NewChannelAdminHandler(db *gorm.DB) *ChannelAdminHandler {
	return &ChannelAdminHandler{db: db}
}

// List returns the organization's channels with masked credentials.
func (h *ChannelAdminHandler) List(c *gin.Context) {
	rows, errList := channels.List(c.Request.Context(), h.db, getOrgID(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list channels"})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, serializeChannel(&row))
	}
	c.JSON(http.StatusOK, gin.H{"channels": items})
}

type channelCreateRequest struct {
	Name      string `json:"name" binding:"required"`
	BaseURL   string `json:"base_url" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	GroupName string `json:"group_name"`
	Priority  int    `json:"priority"`
}

// Create registers a new upstream channel.
func (h *ChannelAdminHandler) Create(c *gin.Context) {
	var req channelCreateRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	row, errCreate := channels.Create(c.Request.Context(), h.db, getOrgID(c), req.Name, req.BaseURL, req.APIKey, req.GroupName, req.Priority)
	if errCreate != nil {
		if errors.Is(errCreate, channels.ErrInvalidBaseURL) || errors.Is(errCreate, channels.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create channel"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": serializeChannel(row)})
}

type channelPatchRequest struct {
	Name      *string `json:"name"`
	BaseURL   *string `json:"base_url"`
	APIKey    *string `json:"api_key"`
	GroupName *string `json:"group_name"`
	Enabled   *bool   `json:"enabled"`
	Priority  *int    `json:"priority"`
}

// Patch updates one channel.
func (h *ChannelAdminHandler) Patch(c *gin.Context) {
	channelID := pathID(c, "id")
	if channelID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	var req channelPatchRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	patch := channels.Update{
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		APIKey:    req.APIKey,
		GroupName: req.GroupName,
		Enabled:   req.Enabled,
		Priority:  req.Priority,
	}
	row, errApply := channels.Apply(c.Request.Context(), h.db, getOrgID(c), channelID, patch)
	if errApply != nil {
		switch {
		case errors.Is(errApply, channels.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		case errors.Is(errApply, channels.ErrInvalidBaseURL), errors.Is(errApply, channels.ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{"error": errApply.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update channel"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": serializeChannel(row)})
}

// Delete removes one channel.
func (h *ChannelAdminHandler) Delete(c *gin.Context) {
	channelID := pathID(c, "id")
	if channelID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	if errDelete := channels.Delete(c.Request.Context(), h.db, getOrgID(c), channelID); errDelete != nil {
		if errors.Is(errDelete, channels.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete channel"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func serializeChannel(row *models.Channel) gin.H {
	return gin.H{
		"id":         row.ID,
		"name":       row.Name,
		"base_url":   row.BaseURL,
		"api_key":    channels.MaskAPIKey(row.APIKey),
		"group_name": row.GroupName,
		"enabled":    row.Enabled,
		"priority":   row.Priority,
		"created_at": row.CreatedAt,
	}
}
