package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookvault/internal/pkg/response"
)

// RequireRole ensures the caller holds one of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		if role == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authentication required")
			return
		}

		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, response.CodeForbidden, "Access denied: insufficient permissions")
	}
}

// AdminOnly accepts admin tokens and trusted internal callers.
func AdminOnly() gin.HandlerFunc {
	return RequireRole(RoleAdmin, RoleInternal)
}
