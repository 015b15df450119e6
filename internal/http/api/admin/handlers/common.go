package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// getActorID returns the authenticated admin's user ID from context.
func getActorID(c *gin.Context) uint64 {
	value, ok := c.Get("userID")
	if !ok {
		return 0
	}
	id, _ := value.(uint64)
	return id
}

// getOrgID returns the admin's organization scope from context.
func getOrgID(c *gin.Context) uint64 {
	value, ok := c.Get("orgID")
	if !ok {
		return 0
	}
	id, _ := value.(uint64)
	return id
}

// pathID parses a numeric path parameter, returning 0 when invalid.
func pathID(c *gin.Context, name string) uint64 {
	id, errParse := strconv.ParseUint(c.Param(name), 10, 64)
	if errParse != nil {
		return 0
	}
	return id
}
