package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelPriceAdminHandler manages per-organization pricing overrides.
type ModelPriceAdminHandler struct {
	db *gorm.DB
}

// NewModelPriceAdminHandler constructs a ModelPriceAdminHandler.
func NewModelPriceAdminHandler(db *gorm.DB) *ModelPriceAdminHandler {
	return &ModelPriceAdminHandler{db: db}
}

// List returns the organization's pricing overrides.
func (h *ModelPriceAdminHandler) List(c *gin.Context) {
	var rows []models.ModelPrice
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("org_id = ?", getOrgID(c)).
		Order("model_id ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list model prices"})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, serializeModelPrice(&row))
	}
	c.JSON(http.StatusOK, gin.H{"model_prices": items})
}

// modelPriceUpsertRequest carries override fields. Prices are decimal USD per
// million tokens as strings; an empty string clears the side back to the
// default table. Edits only affect future requests, past usage keeps the
// cost computed at request time.
type modelPriceUpsertRequest struct {
	Enabled       *bool   `json:"enabled"`
	InputUSDPerM  *string `json:"input_usd_per_m"`
	OutputUSDPerM *string `json:"output_usd_per_m"`
}

// Upsert creates or updates the override row for one model.
func (h *ModelPriceAdminHandler) Upsert(c *gin.Context) {
	modelID := strings.TrimSpace(c.Param("model"))
	if modelID == "" || len(modelID) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid model id"})
		return
	}

	var req modelPriceUpsertRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	row := models.ModelPrice{
		OrgID:   getOrgID(c),
		ModelID: modelID,
		Enabled: true,
	}
	if req.Enabled != nil {
		row.Enabled = *req.Enabled
	}
	if req.InputUSDPerM != nil && strings.TrimSpace(*req.InputUSDPerM) != "" {
		micros, errParse := billing.ParseUSDPerM(*req.InputUSDPerM)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input price"})
			return
		}
		row.InputUSDMicrosPerM = micros
	}
	if req.OutputUSDPerM != nil && strings.TrimSpace(*req.OutputUSDPerM) != "" {
		micros, errParse := billing.ParseUSDPerM(*req.OutputUSDPerM)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid output price"})
			return
		}
		row.OutputUSDMicrosPerM = micros
	}

	errSave := h.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "model_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"enabled", "input_usd_micros_per_m", "output_usd_micros_per_m", "updated_at",
			}),
		}).
		Create(&row).Error
	if errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save model price"})
		return
	}

	var saved models.ModelPrice
	errFind := h.db.WithContext(c.Request.Context()).
		Where("org_id = ? AND model_id = ?", row.OrgID, modelID).
		First(&saved).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save model price"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load model price"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model_price": serializeModelPrice(&saved)})
}

func serializeModelPrice(row *models.ModelPrice) gin.H {
	out := gin.H{
		"model_id":   row.ModelID,
		"enabled":    row.Enabled,
		"updated_at": row.UpdatedAt,
	}
	if row.InputUSDMicrosPerM != nil {
		out["input_usd_micros_per_m"] = *row.InputUSDMicrosPerM
	}
	if row.OutputUSDMicrosPerM != nil {
		out["output_usd_micros_per_m"] = *row.OutputUSDMicrosPerM
	}
	return out
}
