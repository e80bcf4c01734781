package middleware

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// quiet paths are polled by probes and scrapers
var quietPaths = []string{"/health", "/metrics"}

// Logger logs one line per request with ginzap, tagged with the request id
// and the calling application.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(logger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  quietPaths,
		Context: func(c *gin.Context) []zapcore.Field {
			fields := []zapcore.Field{zap.String("request_id", RequestID(c))}
			if app := AppName(c); app != "" {
				fields = append(fields, zap.String("app", app))
			}
			if len(c.Errors) > 0 {
				fields = append(fields, zap.String("errors", c.Errors.String()))
			}
			return fields
		},
	})
}

// Recovery turns panics into 500s and logs them with a stack trace.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return ginzap.RecoveryWithZap(logger, true)
}
