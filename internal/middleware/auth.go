package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Fallback identity for local runs without the gateway in front. The UUID is
// a valid one so downstream foreign keys on created documents still parse.
const (
	devUserID   = "00000000-0000-0000-0000-000000000001"
	devTenantID = "00000000-0000-0000-0000-000000000001"
)

// DevelopmentAuthMiddleware populates the request identity from the
// X-User-ID / X-Tenant-ID headers the gateway injects after verifying the
// caller. The service itself never sees credentials; it trusts the gateway
// and falls back to a fixed development identity when the headers are
// absent. Health endpoints bypass identity entirely.
func DevelopmentAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/health") ||
			strings.HasPrefix(c.Request.URL.Path, "/ready") {
			c.Next()
			return
		}

		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = devUserID
		}
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			tenantID = devTenantID
		}

		c.Set("user_id", userID)
		c.Set("user_email", "dev@example.com")
		c.Set("user_name", "Development User")
		c.Set("tenant_id", tenantID)
		c.Set("user_roles", []string{"admin", "employee"})

		c.Next()
	}
}

// RequireRole gates a route on one of the roles set by the auth middleware.
// super_admin passes every gate.
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, exists := c.Get("user_roles")
		if !exists {
			forbid(c, "NO_ROLES", "User roles not found")
			return
		}

		userRoles, ok := roles.([]string)
		if !ok {
			forbid(c, "INVALID_ROLES", "Invalid user roles format")
			return
		}

		for _, role := range userRoles {
			if role == requiredRole || role == "super_admin" {
				c.Next()
				return
			}
		}

		forbid(c, "INSUFFICIENT_PERMISSIONS", "Required role: "+requiredRole)
	}
}

func forbid(c *gin.Context, code, message string) {
	c.JSON(http.StatusForbidden, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}
