package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/usage"
	"gorm.io/gorm"
)

// UsageHandler serves the per-user usage dashboard.
type UsageHandler struct {
	db *gorm.DB
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(db *gorm.DB) *UsageHandler {
	return &UsageHandler{db: db}
}

// Get returns the 24h summary, daily points and top models for the caller.
func (h *UsageHandler) Get(c *gin.Context) {
	dashboard, errGet := usage.GetDashboard(c.Request.Context(), h.db, getOrgID(c), getUserID(c), 7)
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "usage query failed"})
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
