package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"querygrid/pkg/logger"
)

// Logger logs every request with timing and status. Health probes are
// logged at debug level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		kv := []any{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			kv = append(kv, "error", errs.String())
		}

		l := log.WithContext(c.Request.Context())
		if c.FullPath() == "/health/live" || c.FullPath() == "/health/ready" {
			l.Debugw("http request", kv...)
			return
		}
		l.Infow("http request", kv...)
	}
}
