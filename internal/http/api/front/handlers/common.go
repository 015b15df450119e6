package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Cookie names shared with the console frontend.
const (
	SessionCookieName = "lg_session"
	DeviceCookieName  = "lg_device"
)

// getUserID extracts the authenticated user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get("userID")
	if !exists {
		return 0
	}
	id, ok := val.(uint64)
	if !ok {
		return 0
	}
	return id
}

// getOrgID extracts the resolved organization ID from gin context.
func getOrgID(c *gin.Context) uint64 {
	val, exists := c.Get("orgID")
	if !exists {
		return 0
	}
	id, ok := val.(uint64)
	if !ok {
		return 0
	}
	return id
}

// clientIP prefers the first X-Forwarded-For hop over the socket peer.
func clientIP(c *gin.Context) string {
	forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-For"))
	if forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			if len(first) > 64 {
				first = first[:64]
			}
			return first
		}
	}
	return c.ClientIP()
}

// deviceID reads the device cookie, empty when absent.
func deviceID(c *gin.Context) string {
	value, errCookie := c.Cookie(DeviceCookieName)
	if errCookie != nil {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) > 64 {
		value = value[:64]
	}
	return value
}
