package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/db"
	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

// UserAdminHandler handles operator user management.
type UserAdminHandler struct {
	db *gorm.DB
}

// NewUserAdminHandler constructs a UserAdminHandler.
func NewUserAdminHandler(db *gorm.DB) *UserAdminHandler {
	return &UserAdminHandler{db: db}
}

// userListQuery defines filters for the user list view.
type userListQuery struct {
	Page  int    `form:"page,default=1"`   // Page number.
	Limit int    `form:"limit,default=20"` // Page size.
	Email string `form:"email"`            // Substring email filter.
}

// List returns user accounts with paging and an optional email filter.
func (h *UserAdminHandler) List(c *gin.Context) {
	var q userListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	ctx := c.Request.Context()
	query := h.db.WithContext(ctx).Model(&models.User{})
	if emailQ := strings.TrimSpace(q.Email); emailQ != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(emailQ)+"%")
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count users"})
		return
	}

	var users []models.User
	if errFind := query.Order("id DESC").
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	items := make([]gin.H, 0, len(users))
	for _, user := range users {
		items = append(items, serializeAdminUser(&user))
	}
	c.JSON(http.StatusOK, gin.H{"users": items, "total": total, "page": q.Page, "limit": q.Limit})
}

// userPatchRequest defines the mutable fields of a user account. The balance
// adjustment is a signed delta in USD cents; every adjustment is recorded as
// a ledger entry attributed to the acting admin.
type userPatchRequest struct {
	Banned              *bool   `json:"banned"`
	GroupName           *string `json:"group_name"`
	Role                *string `json:"role"`
	BalanceDeltaUSDCent *int64  `json:"balance_delta_usd_cents"`
}

// Patch updates one user account.
func (h *UserAdminHandler) Patch(c *gin.Context) {
	userID := pathID(c, "id")
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req userPatchRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Role != nil && *req.Role != models.RoleUser && *req.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	ctx := c.Request.Context()
	actorID := getActorID(c)
	orgID := getOrgID(c)

	var updated models.User
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := db.WithRowLock(tx).First(&user, userID).Error; errFind != nil {
			return errFind
		}

		updates := map[string]any{}
		if req.Banned != nil {
			if *req.Banned && user.BannedAt == nil {
				now := tx.NowFunc().UTC()
				updates["banned_at"] = &now
			} else if !*req.Banned && user.BannedAt != nil {
				updates["banned_at"] = nil
			}
		}
		if req.GroupName != nil {
			group := strings.TrimSpace(*req.GroupName)
			if group == "" {
				group = "default"
			}
			updates["group_name"] = group
		}
		if req.Role != nil {
			updates["role"] = *req.Role
		}

		if req.BalanceDeltaUSDCent != nil && *req.BalanceDeltaUSDCent != 0 {
			before := user.BalanceUSDCents
			after := before + *req.BalanceDeltaUSDCent
			if errValidate := billing.ValidateBalanceUSDCents(after); errValidate != nil {
				return errValidate
			}
			updates["balance_usd_cents"] = after
			if errLedger := billing.StageLedgerEntry(tx, orgID, user.ID, &actorID, before, after, models.LedgerEntryAdjustment); errLedger != nil {
				return errLedger
			}
		}

		if len(updates) > 0 {
			if errSave := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errSave != nil {
				return errSave
			}
		}
		return tx.First(&updated, user.ID).Error
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(errTx, billing.ErrNegativeBalance):
			c.JSON(http.StatusBadRequest, gin.H{"error": "adjustment would make balance negative"})
		case errors.Is(errTx, billing.ErrBalanceTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"error": "adjustment exceeds balance cap"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": serializeAdminUser(&updated)})
}

func serializeAdminUser(user *models.User) gin.H {
	out := gin.H{
		"id":                     user.ID,
		"email":                  user.Email,
		"role":                   user.Role,
		"group_name":             user.GroupName,
		"balance_usd_cents":      user.BalanceUSDCents,
		"spend_usd_micros_total": user.SpendUSDMicrosTotal,
		"banned":                 user.BannedAt != nil,
		"created_at":             user.CreatedAt,
	}
	if user.BannedAt != nil {
		out["banned_at"] = user.BannedAt.UTC().Format(time.RFC3339)
	}
	if user.InvitedByUserID != nil {
		out["invited_by_user_id"] = *user.InvitedByUserID
	}
	if user.LastLoginAt != nil {
		out["last_login_at"] = user.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return out
}
