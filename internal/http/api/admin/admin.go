package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/http/api/admin/handlers"
	fronthandlers "github.com/ledgergate/ledgergate/internal/http/api/front/handlers"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/orgs"
	"github.com/ledgergate/ledgergate/internal/security"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the operator console routes. All routes
// require an admin-role session.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config) {
	if r == nil || db == nil || cfg == nil {
		return
	}

	group := r.Group("/v1/admin")
	group.Use(adminAuthMiddleware(db, cfg.JWTSecret))

	userHandler := handlers.NewUserAdminHandler(db)
	group.GET("/users", userHandler.List)
	group.PATCH("/users/:id", userHandler.Patch)

	priceHandler := handlers.NewModelPriceAdminHandler(db)
	group.GET("/model-prices", priceHandler.List)
	group.PUT("/model-prices/:model", priceHandler.Upsert)

	channelHandler := handlers.NewChannelAdminHandler(db)
	group.GET("/channels", channelHandler.List)
	group.POST("/channels", channelHandler.Create)
	group.PATCH("/channels/:id", channelHandler.Patch)
	group.DELETE("/channels/:id", channelHandler.Delete)

	announcementHandler := handlers.NewAnnouncementAdminHandler(db)
	group.POST("/announcements", announcementHandler.Create)
	group.PATCH("/announcements/:id", announcementHandler.Patch)
}

// adminAuthMiddleware validates the session and requires the admin role.
func adminAuthMiddleware(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := adminSessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}

		claims, errJWT := security.ParseSessionToken(jwtSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.BannedAt != nil || user.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}

		membership, errMember := orgs.RequireMembership(c.Request.Context(), db, user.ID)
		if errMember != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "membership resolution failed"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("orgID", membership.OrgID)
		c.Next()
	}
}

func adminSessionToken(c *gin.Context) string {
	if cookie, errCookie := c.Cookie(fronthandlers.SessionCookieName); errCookie == nil {
		if token := strings.TrimSpace(cookie); token != "" {
			return token
		}
	}
	authHeader := c.GetHeader("Authorization")
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return strings.TrimSpace(token)
	}
	return ""
}
