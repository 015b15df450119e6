package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// AnnouncementHandler serves operator-published notices.
type AnnouncementHandler struct {
	db *gorm.DB
}

// NewAnnouncementHandler constructs an AnnouncementHandler.
func NewAnnouncementHandler(db *gorm.DB) *AnnouncementHandler {
	return &AnnouncementHandler{db: db}
}

// List returns published announcements, newest first.
func (h *AnnouncementHandler) List(c *gin.Context) {
	var rows []models.Announcement
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("published = ?", true).
		Order("created_at DESC").
		Limit(20).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load announcements"})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, gin.H{
			"id":         row.ID,
			"title":      row.Title,
			"body":       row.Body,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"announcements": items})
}
