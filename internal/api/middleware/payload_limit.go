package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxPayload rejects oversized request bodies. The Content-Length header is
// checked first; the body reader is capped regardless, so a missing or
// lying header cannot bypass the limit.
func MaxPayload(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "PAYLOAD_TOO_LARGE",
				"message": "request body exceeds maximum size",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
