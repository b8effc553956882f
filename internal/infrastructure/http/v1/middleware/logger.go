package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"hivepos/pkg/logger"
)

// Logger middleware logs one line per request and makes log the context
// logger for everything the request calls. Server errors log at error level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if c.Writer.Header().Get("Idempotent-Replayed") != "" {
			fields = append(fields, "replayed", true)
		}

		l := log.WithContext(c.Request.Context())
		if status >= 500 {
			l.Errorw("http request", append(fields, "error", c.Errors.String())...)
			return
		}
		l.Infow("http request", fields...)
	}
}
