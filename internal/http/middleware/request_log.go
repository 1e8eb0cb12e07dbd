package middleware

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/store-composite/internal/http/response"
	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/ctxutil"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		fields = append(fields, ctxutil.RequestScopeFrom(c.Request.Context()).LogFields()...)
		if ac, ok := ctxutil.GetAuthContext(c.Request.Context()); ok && ac.Subject != "" {
			fields = append(fields, "subject", ac.Subject)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 error body.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		if log != nil {
			log.Error("panic recovered", "path", c.Request.URL.Path, "panic", rec, "stack", string(debug.Stack()))
		}
		response.RespondError(c, apierr.Unexpected(0, fmt.Errorf("internal server error")))
	})
}
