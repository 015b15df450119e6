package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// AnnouncementAdminHandler manages operator announcements.
type AnnouncementAdminHandler struct {
	db *gorm.DB
}

// NewAnnouncementAdminHandler constructs an AnnouncementAdminHandler.
func NewAnnouncementAdminHandler(db *gorm.DB) *AnnouncementAdminHandler {
	return &AnnouncementAdminHandler{db: db}
}

type announcementCreateRequest struct {
	Title     string `json:"title" binding:"required"`
	Body      string `json:"body" binding:"required"`
	Published *bool  `json:"published"`
}

// Create publishes a new announcement.
func (h *AnnouncementAdminHandler) Create(c *gin.Context) {
	var req announcementCreateRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 256 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
		return
	}

	row := models.Announcement{Title: title, Body: req.Body, Published: true}
	if req.Published != nil {
		row.Published = *req.Published
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create announcement"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcement": serializeAnnouncement(&row)})
}

type announcementPatchRequest struct {
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	Published *bool   `json:"published"`
}

// Patch updates one announcement.
func (h *AnnouncementAdminHandler) Patch(c *gin.Context) {
	announcementID := pathID(c, "id")
	if announcementID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid announcement id"})
		return
	}

	var req announcementPatchRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > 256 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
			return
		}
		updates["title"] = title
	}
	if req.Body != nil {
		updates["body"] = *req.Body
	}
	if req.Published != nil {
		updates["published"] = *req.Published
	}

	var row models.Announcement
	ctx := c.Request.Context()
	if errFind := h.db.WithContext(ctx).First(&row, announcementID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "announcement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load announcement"})
		return
	}
	if len(updates) > 0 {
		if errSave := h.db.WithContext(ctx).Model(&row).Updates(updates).Error; errSave != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update announcement"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"announcement": serializeAnnouncement(&row)})
}

func serializeAnnouncement(row *models.Announcement) gin.H {
	return gin.H{
		"id":         row.ID,
		"title":      row.Title,
		"body":       row.Body,
		"published":  row.Published,
		"created_at": row.CreatedAt,
		"updated_at": row.UpdatedAt,
	}
}
