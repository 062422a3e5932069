package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// Trusted identity headers set by the fronting gateway. Identity issuance is
// external; this layer only consumes the resolved actor.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

const actorContextKey = "actor"

// identityMiddleware resolves the acting identity from the trusted headers
// and rejects requests that carry none or an unrecognized role.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		role := models.Role(c.GetHeader(headerUserRole))

		if userID == "" || !role.IsValid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid identity headers",
			})
			return
		}

		c.Set(actorContextKey, models.Actor{UserID: userID, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	actor, _ := c.MustGet(actorContextKey).(models.Actor)
	return actor
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-User-Role")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
