package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore keeps proxies and browsers from caching exam responses. A cached
// paper or attempt state could be replayed after submission.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
