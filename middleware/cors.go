// api/middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultOrigin = "http://localhost:3000"

// CORSMiddleware allows the storefront origin to call the API with credentials.
func CORSMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = defaultOrigin
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-KEY, accept, origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
