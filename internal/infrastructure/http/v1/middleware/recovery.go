// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"hivepos/internal/core/apperror"
	"hivepos/pkg/logger"
)

// Recovery answers a handler panic with the standard 500 body. It runs
// outermost, so it writes the response itself instead of going through ErrorHandler.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		logger.Error(ctx, "panic recovered",
			"route", c.FullPath(),
			"panic", recovered,
			"stack", string(debug.Stack()),
		)

		appErr := apperror.NewInternal(fmt.Errorf("panic: %v", recovered)).
			WithDetail("request_id", c.GetString("request_id"))
		failIdempotency(c, appErr.HTTPStatus, appErr.Body())
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Body())
	})
}
