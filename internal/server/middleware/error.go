package middleware

import (
	"errors"
	"net/http"

	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// *api.Problem values are written as RFC 9457 documents; anything else
// becomes a generic 500.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		fields := []zap.Field{
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", RequestID(c)),
		}

		var problem *api.Problem
		if errors.As(err, &problem) {
			if problem.Log != nil {
				logger.Warn("Request failed", append(fields, zap.Int("status", problem.Status), zap.Error(problem.Log))...)
			}
			if problem.Instance == "" {
				problem.Instance = c.Request.URL.Path
			}
			c.AbortWithStatusJSON(problem.Status, problem)
			return
		}

		logger.Error("Unhandled error", append(fields, zap.Error(err))...)
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.NewError(
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected error occurred.",
			api.WithInstance(c.Request.URL.Path),
		))
	}
}
