package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// siteCtxKey is the Gin context key used to store the authenticated site ID.
const siteCtxKey = "site_id"

// APIKeyMiddleware maps X-API-Key → siteID. An unknown key is rejected with
// 401 before any side effect; nothing downstream runs for an unknown site.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		siteID, ok := keys[apiKey]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(siteCtxKey, siteID)
		c.Next()
	}
}

// SiteID returns the authenticated site ID from the request context.
func SiteID(c *gin.Context) string {
	v, _ := c.Get(siteCtxKey)
	s, _ := v.(string)
	return s
}
