package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/idempotency"
	"hivepos/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Internal causes are logged and never sent to the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, body := errorBody(c, err)

		// Failed responses replay too, so a retried request sees the same outcome.
		failIdempotency(c, status, body)

		c.JSON(status, body)
	}
}

func errorBody(c *gin.Context, err error) (int, gin.H) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"path", c.FullPath(),
				"cause", appErr.Err,
			)
		}
		return appErr.HTTPStatus, appErr.Body()
	}

	logger.Error(c.Request.Context(), "unhandled error",
		"path", c.FullPath(),
		"error", err,
	)
	return http.StatusInternalServerError, gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": map[string]any{
			"request_id": c.GetString("request_id"),
		},
	}
}

func failIdempotency(c *gin.Context, status int, body gin.H) {
	key := c.GetString(ctxIdempotencyKey)
	if key == "" {
		return
	}
	store, ok := c.Get(ctxIdempotencyStore)
	if !ok {
		return
	}
	if s, ok := store.(idempotency.Store); ok && s != nil {
		if err := s.FailKey(c.Request.Context(), key, status, "application/json", body); err != nil {
			logger.Warn(c.Request.Context(), "idempotency fail key", "key", key, "error", err)
		}
	}
}
