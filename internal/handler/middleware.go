package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireBearerMiddleware guards the API with the configured static token.
// An empty token disables auth (local development). Health probes and the
// swagger UI stay open either way.
func RequireBearerMiddleware(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/readyz" || strings.HasPrefix(path, "/swagger") {
			c.Next()
			return
		}
		if strings.HasPrefix(path, "/api/") {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}
		c.Next()
	}
}
