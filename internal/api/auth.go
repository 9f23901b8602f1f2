package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"backtest-core/pkg/auth"
)

const clientContextKey = "Client"

// AuthMiddleware enforces bearer tokens when secret is set; otherwise it
// lets every request through.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "MISSING_TOKEN",
				"error":   "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "INVALID_AUTH_HEADER",
				"error":   "invalid Authorization header",
			})
			return
		}

		client, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "INVALID_TOKEN",
				"error":   "invalid or expired token",
			})
			return
		}

		c.Set(clientContextKey, client)
		c.Next()
	}
}
