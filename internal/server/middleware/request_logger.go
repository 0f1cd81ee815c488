package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neilnvaidya/owlby-api/internal/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger assigns each request an id and writes one access log line on
// completion. Health probes are skipped to keep the log readable.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" {
			return
		}

		logger.L().Info("http_request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_id", UserID(c)),
		)
	}
}
