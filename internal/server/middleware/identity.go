package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAppName   = "X-App-Name"

	ctxRequestID = "request_id"
	ctxAppName   = "app_name"
)

// Identity tags every request with an id, honouring one supplied by the
// caller, and records the calling application's name when present.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)

		if app := c.GetHeader(HeaderAppName); app != "" {
			c.Set(ctxAppName, app)
		}
		c.Next()
	}
}

func RequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func AppName(c *gin.Context) string {
	return c.GetString(ctxAppName)
}
