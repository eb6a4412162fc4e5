package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"gochat-backend/internal/pkg/logger"
)

// RequestLogger records one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Infow("http request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"latency", time.Since(start).String(),
		)
	}
}
