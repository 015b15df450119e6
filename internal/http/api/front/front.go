package front

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/billing"
	"github.com/ledgergate/ledgergate/internal/billing/creem"
	"github.com/ledgergate/ledgergate/internal/config"
	"github.com/ledgergate/ledgergate/internal/http/api/front/handlers"
	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/ledgergate/ledgergate/internal/orgs"
	"github.com/ledgergate/ledgergate/internal/ratelimit"
	"github.com/ledgergate/ledgergate/internal/security"
	"github.com/ledgergate/ledgergate/internal/usage"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers the public completion proxy, the payment
// webhook, and the authenticated console routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, redisClient *redis.Client) {
	if r == nil || db == nil || cfg == nil {
		return
	}

	creemClient := creem.NewClient(cfg.Creem.APIKey, cfg.Creem.ProductID)
	recorder := usage.NewRecorder(db)
	prices := billing.DefaultPriceTable()
	checkoutLimiter := ratelimit.NewLimiter(redisClient, "lg:checkout", 10, time.Hour)
	inviteLimiter := ratelimit.NewLimiter(redisClient, "lg:invite", 30, time.Minute)

	// API-key authenticated proxy surface. Credential checks live in the
	// handler so failures can carry per-reason status codes.
	proxyHandler := handlers.NewProxyHandler(db, prices, recorder, cfg.ProxyTimeout)
	r.POST("/v1/chat/completions", proxyHandler.ChatCompletions)
	r.POST("/v1/responses", proxyHandler.Responses)

	front := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret, cfg.SessionTTL)
	front.POST("/auth/register", authHandler.Register)
	front.POST("/auth/login", authHandler.Login)
	front.POST("/auth/logout", authHandler.Logout)

	webhookHandler := handlers.NewWebhookHandler(db, cfg.Creem.WebhookSecret, cfg.Creem.ProductID)
	front.POST("/webhook/creem", webhookHandler.Creem)

	inviteHandler := handlers.NewInviteHandler(db, inviteLimiter, cfg.PublicURL)
	front.POST("/invite/visit", inviteHandler.Visit)

	authed := front.Group("")
	authed.Use(sessionAuthMiddleware(db, cfg.JWTSecret))

	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/invite/summary", inviteHandler.Summary)

	apiKeyHandler := handlers.NewAPIKeyHandler(db)
	authed.POST("/api-keys", apiKeyHandler.Create)
	authed.GET("/api-keys", apiKeyHandler.List)
	authed.POST("/api-keys/:id/reveal", apiKeyHandler.Reveal)
	authed.POST("/api-keys/:id/revoke", apiKeyHandler.Revoke)

	billingHandler := handlers.NewBillingHandler(db, creemClient, checkoutLimiter, cfg.PublicURL)
	authed.POST("/billing/topup/checkout", billingHandler.CheckoutTopup)
	authed.GET("/billing/topup/status", billingHandler.TopupStatus)
	authed.GET("/billing/ledger", billingHandler.Ledger)
	authed.GET("/billing/settings", billingHandler.Settings)

	usageHandler := handlers.NewUsageHandler(db)
	authed.GET("/usage/dashboard", usageHandler.Get)

	announcementHandler := handlers.NewAnnouncementHandler(db)
	authed.GET("/announcements", announcementHandler.List)
}

// sessionAuthMiddleware validates console sessions and loads the user and
// the default-organization membership into context.
func sessionAuthMiddleware(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
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
		if user.BannedAt != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "banned"})
			return
		}

		membership, errMember := orgs.RequireMembership(c.Request.Context(), db, user.ID)
		if errMember != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "membership resolution failed"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("userRole", user.Role)
		c.Set("orgID", membership.OrgID)
		c.Next()
	}
}

// sessionToken extracts the session JWT from the session cookie or, as a
// fallback for non-browser clients, a bearer Authorization header.
func sessionToken(c *gin.Context) string {
	if cookie, errCookie := c.Cookie(handlers.SessionCookieName); errCookie == nil {
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
