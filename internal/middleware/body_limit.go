package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/proctorexam/internal/response"
)

// BodyLimit rejects request bodies larger than limit bytes. A declared
// Content-Length over the limit is refused before anything is read; chunked
// bodies fail on the read that crosses it with *http.MaxBytesError.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			response.AbortFail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// FrameBodyLimit is the body size that fits a base64 data URL of a frame of
// maxFrameBytes plus the JSON envelope around it.
func FrameBodyLimit(maxFrameBytes int64) int64 {
	return (maxFrameBytes+2)/3*4 + 4<<10
}
